package model

// Type distinguishes one-shot tasks from recurring ones.
type Type string

const (
	TypeAsync Type = "async"
	TypeCron  Type = "cron"
)

func (t Type) String() string { return string(t) }

func (t Type) Valid() bool {
	return t == TypeAsync || t == TypeCron
}
