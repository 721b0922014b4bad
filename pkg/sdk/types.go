package sdk

import (
	"encoding/json"
	"time"
)

// WorkStatusPending is the status label of an assignment that has not been submitted.
const WorkStatusPending = "待做"

// Term is a teaching term. ID encodes year and term, e.g. 20193 for the third term of 2019.
type Term struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// CourseInfo is one entry of the course list.
type CourseInfo struct {
	PageURL string `json:"page_url"`
	Name    string `json:"name"`
	Teacher string `json:"teacher"`
	Seq     string `json:"seq"`
}

// WorkInfo is one assignment of a course. Start and End are nil when the page leaves them blank.
type WorkInfo struct {
	Name   string     `json:"name"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Status string     `json:"status"`
}

// UnmarshalJSON restores Start and End in the portal's zone. A decoded time otherwise carries
// whichever location matches its offset on the decoding host, which may be time.Local.
func (w *WorkInfo) UnmarshalJSON(data []byte) error {
	type plain WorkInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Start = inPortalZone(p.Start)
	p.End = inPortalZone(p.End)
	*w = WorkInfo(p)
	return nil
}

func inPortalZone(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.In(chinaTime)
	return &v
}

// Pending reports whether the assignment still has to be done.
func (w WorkInfo) Pending() bool {
	return w.Status == WorkStatusPending
}

// CourseWork groups the pending assignments of one course.
type CourseWork struct {
	Course CourseInfo `json:"course"`
	Works  []WorkInfo `json:"works"`
}
