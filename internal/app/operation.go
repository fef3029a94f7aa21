package app

// Operation statuses recorded in the catalog.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks the CLI command being run. It lives in memory with ID=0
// until a catalog-mutating call persists it, at which point the catalog
// assigns the ID that also versions the uploaded catalog snapshot.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the catalog.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed; the status is written on Close.
func (op *Operation) Fail() {
	op.Status = StatusError
}
