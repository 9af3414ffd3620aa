package httpapi

// Request/response shapes for the /api HTTP surface (spec §6), field names
// and size limits matching the original src/models/schemas.py exactly.

const (
	maxVisitorIDLen = 128
	maxSeedLen      = 128
	maxTraceDataLen = 2048
	maxHashLen      = 256
	maxNonce        = uint64(1) << 53
)

// submissionRequest is the wire shape of spec's Submission entity.
type submissionRequest struct {
	VisitorID     string `json:"visitorId" binding:"required"`
	Nonce         uint64 `json:"nonce"`
	SubmittedSeed string `json:"submittedSeed" binding:"required"`
	TraceData     string `json:"traceData"`
	Hash          string `json:"hash" binding:"required"`
}

func (s submissionRequest) validate() (string, bool) {
	if len(s.VisitorID) > maxVisitorIDLen {
		return "visitorId exceeds maximum length", false
	}
	if len(s.SubmittedSeed) > maxSeedLen {
		return "submittedSeed exceeds maximum length", false
	}
	if len(s.TraceData) > maxTraceDataLen {
		return "traceData exceeds maximum length", false
	}
	if len(s.Hash) > maxHashLen {
		return "hash exceeds maximum length", false
	}
	if s.Nonce > maxNonce {
		return "nonce exceeds maximum value", false
	}
	return "", true
}

type verifyResponse struct {
	InviteCode string `json:"invite_code"`
}

type puzzleResponse struct {
	Seed             string  `json:"seed"`
	Difficulty       int     `json:"difficulty"`
	MemoryCost       uint32  `json:"memory_cost"`
	TimeCost         uint32  `json:"time_cost"`
	Parallelism      uint8   `json:"parallelism"`
	WorkerCount      int     `json:"worker_count"`
	PuzzleStartTime  float64 `json:"puzzle_start_time"`
	LastSolveTime    float64 `json:"last_solve_time"`
	AverageSolveTime float64 `json:"average_solve_time"`
}

type healthResponse struct {
	Status            string `json:"status"`
	CurrentSeedPrefix string `json:"current_seed_prefix"`
}

type turnstileConfigResponse struct {
	SiteKey  string `json:"siteKey"`
	TestMode bool   `json:"testMode"`
}
