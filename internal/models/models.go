package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	StatusNew        ReportStatus = "New"
	StatusInProgress ReportStatus = "In Progress"
	StatusResolved   ReportStatus = "Resolved"
	StatusWaiting    ReportStatus = "Waiting for user follow-up"
)

var ReportStatuses = []ReportStatus{StatusNew, StatusInProgress, StatusResolved, StatusWaiting}

func (s ReportStatus) Valid() bool {
	for _, v := range ReportStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Classifications lists the issue categories the assistant may assign.
var Classifications = []string{
	"pothole",
	"broken_streetlight",
	"broken_street_sign",
	"excessive_dumping",
	"illegal_graffiti",
	"vandalism",
	"overgrown_grass",
	"unplowed_area",
	"icy_street",
	"icy_sidewalk",
	"malfunctioning_waterfountain",
	"other",
}

var Severities = []string{"very_low", "low", "medium", "high", "very_high"}

var Priorities = []string{"not_urgent", "urgent", "very_urgent"}

func OneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

type Report struct {
	ID                 uuid.UUID    `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Address            string       `json:"address"`
	City               string       `json:"city"`
	Latitude           *float64     `json:"latitude"`
	Longitude          *float64     `json:"longitude"`
	Status             ReportStatus `json:"status"`
	ThreadID           *string      `json:"threadId"`
	Category           *string      `json:"category"`
	Severity           *string      `json:"severity"`
	Priority           *string      `json:"priority"`
	PriorityScore      *float64     `json:"priorityScore"`
	NeedsClarification bool         `json:"needsClarification"`
	Clarification      *string      `json:"clarification"`
	NbOfMatches        int          `json:"nbOfMatches"`
	CreationTime       time.Time    `json:"creationTime"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

type ReportEvent struct {
	ID        uuid.UUID       `json:"id"`
	ReportID  uuid.UUID       `json:"reportId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"creationTime"`
}

const (
	EventCreated       = "created"
	EventUpdated       = "updated"
	EventStatusChanged = "status_changed"
)

// ReportPatch carries the mutable report fields; nil means "leave unchanged".
type ReportPatch struct {
	Title       *string
	Description *string
	Status      *ReportStatus
	Address     *string
	City        *string
	Latitude    *float64
	Longitude   *float64
}

func (p ReportPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Address == nil && p.City == nil && p.Latitude == nil && p.Longitude == nil
}

// Apply copies the set fields of p onto r.
func (p ReportPatch) Apply(r *Report) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Address != nil {
		r.Address = *p.Address
	}
	if p.City != nil {
		r.City = *p.City
	}
	if p.Latitude != nil {
		r.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		r.Longitude = p.Longitude
	}
}

type ListFilter struct {
	Status   ReportStatus
	Category string
}

// Analysis is the structured output of the analyze_report tool.
type Analysis struct {
	Classification     string   `json:"classification"`
	Severity           string   `json:"severity"`
	Priority           string   `json:"priority"`
	PriorityScore      *float64 `json:"priority_score"`
	NeedsClarification bool     `json:"needs_clarification"`
	Clarification      string   `json:"clarification,omitempty"`
}

// AnalysisResult is what one vendor round trip yields for a report.
type AnalysisResult struct {
	ThreadID     string
	CreationTime time.Time
	Analysis     Analysis
}
