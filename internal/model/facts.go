package model

// ChildFact is a child of a family in which a batch member is a spouse.
type ChildFact struct {
	FamilyTitle string
	HusbandPage string
	WifePage    string
	ChildTitle  string
	ChildBirth  Bracket
}

// SpouseFact is a family in which a batch member is a spouse, with the
// family's own marriage bracket and both spouses' birth brackets.
type SpouseFact struct {
	FamilyTitle  string
	Marriage     Bracket
	HusbandPage  string
	HusbandBirth Bracket
	WifePage     string
	WifeBirth    Bracket
}

// ParentFact is a parent family with its marriage bracket and each parent's
// birth bracket and death year.
type ParentFact struct {
	FamilyTitle       string
	Marriage          Bracket
	FatherTitle       string
	FatherBirth       Bracket
	FatherLatestDeath *int
	MotherTitle       string
	MotherBirth       Bracket
	MotherLatestDeath *int
}

// SiblingFact is a Person row that shares a parent family with a batch member.
type SiblingFact struct {
	ParentPage string
	Title      string
	Birth      Bracket
}
