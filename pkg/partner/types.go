// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package partner defines trading partner profiles, partnerships, and the
// resolver contracts used by the outbound pipeline.
//
// A Partnership is the routing rule set for an ordered (sender, receiver)
// pair. The same record may be stored under either party's perspective, so
// resolution always tries the sender|receiver key first and falls back to
// receiver|sender (see Key and ReverseKey).
package partner

import (
	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/x12"
)

// Profile carries the envelope-relevant attributes of one trading partner.
type Profile struct {
	PartnerID            string `json:"partnerId" bson:"partner_id"`
	InterchangeQualifier string `json:"interchangeQualifier" bson:"interchange_qualifier"`
	InterchangeID        string `json:"interchangeId" bson:"interchange_id"`
	ApplicationID        string `json:"applicationId" bson:"application_id"`
}

// TransactionSetConfig is one partnership routing entry: which guide it
// translates against, the usage indicator forwarded to the envelope and
// control-number scope, and the ordered destination list to fan out to.
// Multiple entries may share a transaction-set type but differ by guide
// version; exactly one must match the resolved guide.
type TransactionSetConfig struct {
	GuideID            string                 `json:"guideId" bson:"guide_id"`
	UsageIndicatorCode x12.UsageIndicator     `json:"usageIndicatorCode" bson:"usage_indicator_code"`
	SendingPartnerID   string                 `json:"sendingPartnerId" bson:"sending_partner_id"`
	ReceivingPartnerID string                 `json:"receivingPartnerId" bson:"receiving_partner_id"`
	Destinations       []delivery.Destination `json:"destinations" bson:"destinations"`
}

// Partnership is the resolved routing rule set for a partner pair.
type Partnership struct {
	ID              string                 `json:"id" bson:"_id"`
	TransactionSets []TransactionSetConfig `json:"transactionSets" bson:"transaction_sets"`
}

// Key builds the primary partnership lookup key.
func Key(sendingPartnerID, receivingPartnerID string) string {
	return sendingPartnerID + "|" + receivingPartnerID
}

// ReverseKey builds the fallback lookup key for records stored under the
// other party's perspective.
func ReverseKey(sendingPartnerID, receivingPartnerID string) string {
	return receivingPartnerID + "|" + sendingPartnerID
}

// ConfigsForPair returns the transaction-set configs belonging to the
// given ordered pair, preserving order.
func (p *Partnership) ConfigsForPair(sendingPartnerID, receivingPartnerID string) []TransactionSetConfig {
	var out []TransactionSetConfig
	for _, cfg := range p.TransactionSets {
		if cfg.SendingPartnerID == sendingPartnerID && cfg.ReceivingPartnerID == receivingPartnerID {
			out = append(out, cfg)
		}
	}
	return out
}
