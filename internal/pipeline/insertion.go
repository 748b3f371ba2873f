package pipeline

// DefaultSaturationLimit is the number of requests the default insertion
// policy approves per run.
const DefaultSaturationLimit = 64

// InsertionPolicy is the scheduler's gate for requested stages.
type InsertionPolicy interface {
	Approve(req ApprovalRequest) bool
}

// InsertionFactory returns a fresh InsertionPolicy. Each scheduler run
// gets its own instance, so stateful policies never leak between runs.
type InsertionFactory func() InsertionPolicy

// AlwaysInsert approves every request.
type AlwaysInsert struct{}

// Approve implements InsertionPolicy.
func (AlwaysInsert) Approve(ApprovalRequest) bool { return true }

// NeverInsert rejects every request.
type NeverInsert struct{}

// Approve implements InsertionPolicy.
func (NeverInsert) Approve(ApprovalRequest) bool { return false }

// SaturationInsert approves the first Limit requests and rejects the
// rest. It is not safe for concurrent use; schedulers are single
// threaded.
type SaturationInsert struct {
	limit    int
	approved int
}

// NewSaturationInsert returns a policy that approves at most limit
// requests.
func NewSaturationInsert(limit int) *SaturationInsert {
	return &SaturationInsert{limit: limit}
}

// Approve implements InsertionPolicy.
func (s *SaturationInsert) Approve(ApprovalRequest) bool {
	if s.approved >= s.limit {
		return false
	}
	s.approved++
	return true
}

// Approved returns how many requests were approved so far.
func (s *SaturationInsert) Approved() int { return s.approved }

// MetadataKeyInsert approves requests whose metadata contains Key.
type MetadataKeyInsert struct {
	Key string
}

// Approve implements InsertionPolicy.
func (m MetadataKeyInsert) Approve(req ApprovalRequest) bool {
	return req.Metadata.Has(m.Key)
}

// Saturation returns a factory for SaturationInsert policies.
func Saturation(limit int) InsertionFactory {
	return func() InsertionPolicy { return NewSaturationInsert(limit) }
}

// DefaultInsertion returns the insertion factory used when none is
// configured.
func DefaultInsertion() InsertionFactory {
	return Saturation(DefaultSaturationLimit)
}
