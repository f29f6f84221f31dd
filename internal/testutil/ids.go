package testutil

// FixedIDGenerator returns the same execution id every time, so logs and
// golden traces of a scenario are byte-identical across runs.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id, or "test-exec" when
// id is empty.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-exec"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id. Implements reader.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
