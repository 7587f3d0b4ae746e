// Package oem acquires CCSDS Orbit Ephemeris Message (OEM) XML, such as the
// ISS trajectory NASA publishes, and holds the current decoded dataset.
package oem

import (
	"time"

	"github.com/star/issgo/internal/ephemeris"
)

// Header is the OEM header block.
type Header struct {
	CreationDate string `xml:"CREATION_DATE" json:"creation_date"`
	Originator   string `xml:"ORIGINATOR" json:"originator"`
}

// Metadata describes the object and frame of a segment.
type Metadata struct {
	ObjectName        string `xml:"OBJECT_NAME" json:"object_name"`
	ObjectID          string `xml:"OBJECT_ID" json:"object_id"`
	CenterName        string `xml:"CENTER_NAME" json:"center_name"`
	RefFrame          string `xml:"REF_FRAME" json:"ref_frame"`
	TimeSystem        string `xml:"TIME_SYSTEM" json:"time_system"`
	StartTime         string `xml:"START_TIME" json:"start_time"`
	UseableStartTime  string `xml:"USEABLE_START_TIME" json:"useable_start_time,omitempty"`
	UseableStopTime   string `xml:"USEABLE_STOP_TIME" json:"useable_stop_time,omitempty"`
	StopTime          string `xml:"STOP_TIME" json:"stop_time"`
	InterpolationType string `xml:"INTERPOLATION" json:"interpolation,omitempty"`
}

// Document is a decoded single-segment OEM.
type Document struct {
	Header       Header              `xml:"oem>header"`
	Metadata     Metadata            `xml:"oem>body>segment>metadata"`
	Comments     []string            `xml:"oem>body>segment>data>COMMENT"`
	StateVectors ephemeris.Ephemeris `xml:"oem>body>segment>data>stateVector"`
}

// Dataset is a Document together with where and when it was obtained.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange ephemeris.Range
	Document   *Document
}

// NewDataset wraps doc and computes its epoch range.
func NewDataset(source string, fetchedAt time.Time, doc *Document) *Dataset {
	r, _ := ephemeris.EpochRange(doc.StateVectors)
	return &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		EpochRange: r,
		Document:   doc,
	}
}

// StateVectors returns the dataset's samples; nil for a nil dataset.
func (d *Dataset) StateVectors() ephemeris.Ephemeris {
	if d == nil || d.Document == nil {
		return nil
	}
	return d.Document.StateVectors
}
