package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/model"
)

// ChildrenOf returns every child of a family in which one of the given Person
// titles is husband or wife.
func (s *PostgresStore) ChildrenOf(ctx context.Context, jobID int64, titles []string) ([]model.ChildFact, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT f.title, COALESCE(f.husband_page, ''), COALESCE(f.wife_page, ''),
		        c.title, c.earliest_birth_year, c.latest_birth_year
		 FROM dq_page_analysis f
		 JOIN dq_page_analysis c
		   ON c.job_id = f.job_id AND c.namespace = $3 AND c.parent_page = f.title
		 WHERE f.job_id = $1 AND f.namespace = $4
		   AND (f.husband_page = ANY($2) OR f.wife_page = ANY($2))`,
		jobID, titles, int(model.NamespacePerson), int(model.NamespaceFamily),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: children of")
	}
	defer rows.Close()

	var out []model.ChildFact
	for rows.Next() {
		var c model.ChildFact
		if err := rows.Scan(&c.FamilyTitle, &c.HusbandPage, &c.WifePage,
			&c.ChildTitle, &c.ChildBirth.Earliest, &c.ChildBirth.Latest); err != nil {
			return nil, eris.Wrap(err, "store: scan child")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: children of")
}

// SpouseFamiliesOf returns every family in which one of the given Person
// titles is a spouse, with the family's marriage bracket and the birth
// brackets of both spouses. A spouse without a row has an empty bracket.
func (s *PostgresStore) SpouseFamiliesOf(ctx context.Context, jobID int64, titles []string) ([]model.SpouseFact, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT f.title, f.earliest_marriage_year, f.latest_marriage_year,
		        COALESCE(f.husband_page, ''), h.earliest_birth_year, h.latest_birth_year,
		        COALESCE(f.wife_page, ''), w.earliest_birth_year, w.latest_birth_year
		 FROM dq_page_analysis f
		 LEFT JOIN dq_page_analysis h
		   ON h.job_id = f.job_id AND h.namespace = $3 AND h.title = f.husband_page
		 LEFT JOIN dq_page_analysis w
		   ON w.job_id = f.job_id AND w.namespace = $3 AND w.title = f.wife_page
		 WHERE f.job_id = $1 AND f.namespace = $4
		   AND (f.husband_page = ANY($2) OR f.wife_page = ANY($2))`,
		jobID, titles, int(model.NamespacePerson), int(model.NamespaceFamily),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: spouse families of")
	}
	defer rows.Close()

	var out []model.SpouseFact
	for rows.Next() {
		var f model.SpouseFact
		if err := rows.Scan(&f.FamilyTitle, &f.Marriage.Earliest, &f.Marriage.Latest,
			&f.HusbandPage, &f.HusbandBirth.Earliest, &f.HusbandBirth.Latest,
			&f.WifePage, &f.WifeBirth.Earliest, &f.WifeBirth.Latest); err != nil {
			return nil, eris.Wrap(err, "store: scan spouse family")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "store: spouse families of")
}

// ParentFamilies returns the family rows with the given titles, with each
// parent's birth bracket and latest death year.
func (s *PostgresStore) ParentFamilies(ctx context.Context, jobID int64, familyTitles []string) ([]model.ParentFact, error) {
	if len(familyTitles) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT f.title, f.earliest_marriage_year, f.latest_marriage_year,
		        COALESCE(f.husband_page, ''), h.earliest_birth_year, h.latest_birth_year, h.latest_death_year,
		        COALESCE(f.wife_page, ''), w.earliest_birth_year, w.latest_birth_year, w.latest_death_year
		 FROM dq_page_analysis f
		 LEFT JOIN dq_page_analysis h
		   ON h.job_id = f.job_id AND h.namespace = $3 AND h.title = f.husband_page
		 LEFT JOIN dq_page_analysis w
		   ON w.job_id = f.job_id AND w.namespace = $3 AND w.title = f.wife_page
		 WHERE f.job_id = $1 AND f.namespace = $4 AND f.title = ANY($2)`,
		jobID, familyTitles, int(model.NamespacePerson), int(model.NamespaceFamily),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: parent families")
	}
	defer rows.Close()

	var out []model.ParentFact
	for rows.Next() {
		var p model.ParentFact
		if err := rows.Scan(&p.FamilyTitle, &p.Marriage.Earliest, &p.Marriage.Latest,
			&p.FatherTitle, &p.FatherBirth.Earliest, &p.FatherBirth.Latest, &p.FatherLatestDeath,
			&p.MotherTitle, &p.MotherBirth.Earliest, &p.MotherBirth.Latest, &p.MotherLatestDeath); err != nil {
			return nil, eris.Wrap(err, "store: scan parent family")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "store: parent families")
}

// SiblingsIn returns every Person row whose parent page is one of the given
// family titles.
func (s *PostgresStore) SiblingsIn(ctx context.Context, jobID int64, familyTitles []string) ([]model.SiblingFact, error) {
	if len(familyTitles) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT parent_page, title, earliest_birth_year, latest_birth_year
		 FROM dq_page_analysis
		 WHERE job_id = $1 AND namespace = $3 AND parent_page = ANY($2)`,
		jobID, familyTitles, int(model.NamespacePerson),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: siblings in")
	}
	defer rows.Close()

	var out []model.SiblingFact
	for rows.Next() {
		var sib model.SiblingFact
		if err := rows.Scan(&sib.ParentPage, &sib.Title, &sib.Birth.Earliest, &sib.Birth.Latest); err != nil {
			return nil, eris.Wrap(err, "store: scan sibling")
		}
		out = append(out, sib)
	}
	return out, eris.Wrap(rows.Err(), "store: siblings in")
}
