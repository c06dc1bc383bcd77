package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/detect"
	"github.com/sells-group/dataquality/internal/model"
	"github.com/sells-group/dataquality/internal/tracker"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestLoader(t *testing.T, rows *mockRows, issues *mockIssues, actions *mockActions, batch int) *Loader {
	t.Helper()
	templates, err := tracker.DefaultTemplates()
	require.NoError(t, err)
	det := detect.NewRuleDetector(detect.Limits{UsualLongestLife: 110, MinMarriageAge: 12})
	return New(rows, issues, actions, det, tracker.New(templates, "DeferredDQ"), Options{
		RowBatchSize:     batch,
		UsualLongestLife: 110,
		AncientYear:      1000,
		FamousMarkers:    []string{"{{wikipedia-notice", "{{famous"},
	}, nil)
}

func feed(pages ...model.Page) <-chan model.Page {
	ch := make(chan model.Page, len(pages))
	for _, p := range pages {
		ch <- p
	}
	close(ch)
	return ch
}

func samplePages() []model.Page {
	return []model.Page{
		{PageID: 1, Namespace: model.NamespacePerson, Title: "Ann Smith (1)", Username: "Dallan", Text: `<person>
<gender>F</gender>
<child_of_family title="Smith Family (1)"/>
<event_fact type="Birth" date="1850"/>
<event_fact type="Death" date="1900"/>
</person>`},
		{PageID: 2, Namespace: model.NamespacePerson, Title: "Aelfric (1)", Text: `<person>
<event_fact type="Death" date="abt 900"/>
</person>`},
		{PageID: 3, Namespace: model.NamespacePerson, Title: "Late Bloomer (1)", Text: `<person>
<gender>M</gender>
<event_fact type="Birth" date="1950"/>
<event_fact type="Death" date="1920"/>
</person>
{{Wikipedia-Notice|Late_Bloomer}}`},
		{PageID: 4, Namespace: model.NamespaceFamily, Title: "Smith Family (1)", Text: `<family>
<husband title="John Smith (1)"/>
<wife title="Mary Doe (1)"/>
<child title="Ann Smith (1)"/>
<event_fact type="Marriage" date="1875"/>
</family>`},
		{PageID: 5, Namespace: model.NamespacePerson, Title: "Old Name (1)", Redirect: true, Text: "#REDIRECT [[Person:Ann Smith (1)]]"},
		{PageID: 6, Namespace: model.NamespacePersonTalk, Title: "Late Bloomer (1)", Text: "{{BornAfterDied|[[User:Dallan]]}}"},
	}
}

func TestRun_BuildsRows(t *testing.T) {
	rows, issues, actions := &mockRows{}, &mockIssues{}, &mockActions{}
	l := newTestLoader(t, rows, issues, actions, 2)

	stats, err := l.Run(context.Background(), 9, feed(samplePages()...))
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Pages)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 1, stats.Redirects)
	assert.Zero(t, stats.FailedBatches)
	assert.Len(t, rows.batches, 2)

	ann, ok := rows.byTitle("Ann Smith (1)")
	require.True(t, ok)
	assert.Equal(t, int64(9), ann.JobID)
	assert.Equal(t, "1850-1850", ann.Birth.String())
	assert.Equal(t, 1900, *ann.LatestDeath)
	assert.Equal(t, "Smith Family (1)", ann.ParentPage)
	assert.Equal(t, "Dallan", ann.LastUser)
	assert.Equal(t, "r1 own Ann Smith (1) => 1850-1850", ann.BirthCalc)
	assert.False(t, ann.Famous)
	assert.False(t, ann.Ancient)

	old, ok := rows.byTitle("Aelfric (1)")
	require.True(t, ok)
	assert.True(t, old.Ancient)
	assert.True(t, old.Birth.Complete())

	late, ok := rows.byTitle("Late Bloomer (1)")
	require.True(t, ok)
	assert.True(t, late.Famous)
	assert.True(t, late.Birth.Contradictory())

	fam, ok := rows.byTitle("Smith Family (1)")
	require.True(t, ok)
	assert.Equal(t, model.NamespaceFamily, fam.Namespace)
	assert.Equal(t, "John Smith (1)", fam.HusbandPage)
	assert.Equal(t, "Mary Doe (1)", fam.WifePage)
	assert.Equal(t, "1875-1875", fam.Marriage.String())
	assert.True(t, fam.Birth.Empty())

	_, ok = rows.byTitle("Old Name (1)")
	assert.False(t, ok)
}

func TestRun_CapturesIssuesAndActions(t *testing.T) {
	rows, issues, actions := &mockRows{}, &mockIssues{}, &mockActions{}
	l := newTestLoader(t, rows, issues, actions, 500)

	stats, err := l.Run(context.Background(), 9, feed(samplePages()...))
	require.NoError(t, err)

	var descs []string
	for _, is := range issues.issues {
		descs = append(descs, is.Title+": "+is.Description)
	}
	assert.Contains(t, descs, "Late Bloomer (1): Born after died")
	assert.Contains(t, descs, "Aelfric (1): Missing gender")
	assert.Equal(t, len(issues.issues), stats.Issues)
	assert.Equal(t, 1, issues.flushes)

	require.Len(t, actions.actions, 1)
	a := actions.actions[0]
	assert.Equal(t, int64(9), a.JobID)
	assert.Equal(t, model.NamespacePersonTalk, a.Namespace)
	assert.Equal(t, "Born after died", a.Description)
	assert.Equal(t, []string{"Dallan"}, a.ActionBy)
	assert.Equal(t, 1, actions.flushes)
}

func TestRun_ParseErrorSkipsRecord(t *testing.T) {
	rows, issues, actions := &mockRows{}, &mockIssues{}, &mockActions{}
	l := newTestLoader(t, rows, issues, actions, 500)

	stats, err := l.Run(context.Background(), 9, feed(
		model.Page{PageID: 1, Namespace: model.NamespacePerson, Title: "Broken (1)", Text: "<person><gender>F</person>"},
		model.Page{PageID: 2, Namespace: model.NamespacePerson, Title: "Fine (1)", Text: "<person><gender>M</gender></person>"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ParseErrors)
	assert.Equal(t, 1, stats.Rows)
	_, ok := rows.byTitle("Broken (1)")
	assert.False(t, ok)
}

func TestRun_FailedBatchIsDroppedAndLoadContinues(t *testing.T) {
	rows, issues, actions := &mockRows{failOn: 1}, &mockIssues{}, &mockActions{flushErr: errors.New("copy failed")}
	l := newTestLoader(t, rows, issues, actions, 2)

	stats, err := l.Run(context.Background(), 9, feed(samplePages()...))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.FailedBatches)
	assert.Len(t, rows.batches, 1)
	_, ok := rows.byTitle("Ann Smith (1)")
	assert.False(t, ok)
}

func TestRun_Cancelled(t *testing.T) {
	l := newTestLoader(t, &mockRows{}, &mockIssues{}, &mockActions{}, 500)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Run(ctx, 9, make(chan model.Page))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeed(t *testing.T) {
	assert.Equal(t, "1800-1910", seed(model.Bracket{Earliest: model.IntPtr(1800)}, 110).String())
	assert.Equal(t, "1790-1900", seed(model.Bracket{Latest: model.IntPtr(1900)}, 110).String())
	assert.True(t, seed(model.Bracket{}, 110).Empty())
}
