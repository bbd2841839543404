package refresher

import "time"

// DatabaseReport is the outcome of refreshing one database.
type DatabaseReport struct {
	Database  string `json:"database"`
	Lookup    string `json:"lookup"`
	Views     int    `json:"views"`
	Refreshed int    `json:"refreshed"`
	Failed    int    `json:"failed"`
}

// CycleReport summarises one discovery and refresh pass.
type CycleReport struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration_ns"`
	Databases []DatabaseReport `json:"databases"`

	// Set when database discovery failed and nothing was refreshed
	Error string `json:"error,omitempty"`

	// Host snapshot taken at the end of the cycle
	Host map[string]float64 `json:"host,omitempty"`
}

func NewCycleReport() *CycleReport {
	return &CycleReport{
		StartedAt: time.Now(),
		Databases: []DatabaseReport{},
	}
}

// Failed builds the report of a cycle that could not list databases.
func Failed(startedAt time.Time, err error) *CycleReport {
	return &CycleReport{
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Databases: []DatabaseReport{},
		Error:     err.Error(),
	}
}

func (r *CycleReport) Add(db DatabaseReport) {
	r.Databases = append(r.Databases, db)
}

func (r *CycleReport) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

func (r *CycleReport) ViewsRefreshed() int {
	total := 0
	for _, db := range r.Databases {
		total += db.Refreshed
	}
	return total
}

func (r *CycleReport) ViewsFailed() int {
	total := 0
	for _, db := range r.Databases {
		total += db.Failed
	}
	return total
}

// DatabasesRefreshed counts databases where at least one view was refreshed.
func (r *CycleReport) DatabasesRefreshed() int {
	total := 0
	for _, db := range r.Databases {
		if db.Refreshed > 0 {
			total++
		}
	}
	return total
}
