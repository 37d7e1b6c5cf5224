package x12

import (
	"time"
)

// Interchange-level timestamps carry minute granularity, group-level
// timestamps carry seconds. Both use the local date of issuance.
const (
	interchangeDateFormat = "060102"
	interchangeTimeFormat = "1504"
	groupDateFormat       = "20060102"
	groupTimeFormat       = "150405"
)

// UsageIndicator is forwarded into the ISA envelope and scopes
// control-number issuance.
type UsageIndicator string

const (
	UsageTest        UsageIndicator = "T"
	UsageProduction  UsageIndicator = "P"
	UsageInformation UsageIndicator = "I"
)

// InterchangeHeader holds the ISA segment fields the translator needs.
type InterchangeHeader struct {
	SenderQualifier    string         `json:"senderQualifier"`
	SenderID           string         `json:"senderId"`
	ReceiverQualifier  string         `json:"receiverQualifier"`
	ReceiverID         string         `json:"receiverId"`
	Date               string         `json:"date"`
	Time               string         `json:"time"`
	ControlNumber      int64          `json:"controlNumber"`
	UsageIndicatorCode UsageIndicator `json:"usageIndicatorCode"`
}

// GroupHeader holds the GS segment fields the translator needs.
type GroupHeader struct {
	FunctionalIdentifierCode string `json:"functionalIdentifierCode"`
	ApplicationSenderCode    string `json:"applicationSenderCode"`
	ApplicationReceiverCode  string `json:"applicationReceiverCode"`
	Date                     string `json:"date"`
	Time                     string `json:"time"`
	ControlNumber            int64  `json:"controlNumber"`
}

// Envelope is built once per outbound event and shared read-only across
// all destinations; control numbers are issued per event, not per
// destination, so every delivery of one event carries identical numbers.
type Envelope struct {
	InterchangeHeader InterchangeHeader `json:"interchangeHeader"`
	GroupHeader       GroupHeader       `json:"groupHeader"`
}

// EnvelopeParams collects everything needed to construct an Envelope.
type EnvelopeParams struct {
	SenderQualifier          string
	SenderID                 string
	ReceiverQualifier        string
	ReceiverID               string
	ApplicationSenderCode    string
	ApplicationReceiverCode  string
	FunctionalIdentifierCode string
	UsageIndicatorCode       UsageIndicator
	InterchangeControlNumber int64
	GroupControlNumber       int64
	IssuedAt                 time.Time
}

// NewEnvelope builds the shared per-event envelope.
func NewEnvelope(p EnvelopeParams) *Envelope {
	return &Envelope{
		InterchangeHeader: InterchangeHeader{
			SenderQualifier:    p.SenderQualifier,
			SenderID:           p.SenderID,
			ReceiverQualifier:  p.ReceiverQualifier,
			ReceiverID:         p.ReceiverID,
			Date:               p.IssuedAt.Format(interchangeDateFormat),
			Time:               p.IssuedAt.Format(interchangeTimeFormat),
			ControlNumber:      p.InterchangeControlNumber,
			UsageIndicatorCode: p.UsageIndicatorCode,
		},
		GroupHeader: GroupHeader{
			FunctionalIdentifierCode: p.FunctionalIdentifierCode,
			ApplicationSenderCode:    p.ApplicationSenderCode,
			ApplicationReceiverCode:  p.ApplicationReceiverCode,
			Date:                     p.IssuedAt.Format(groupDateFormat),
			Time:                     p.IssuedAt.Format(groupTimeFormat),
			ControlNumber:            p.GroupControlNumber,
		},
	}
}
