// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rtb adapts OpenRTB 2.x traffic to the native bid decision
// pipeline. Exchanges that speak OpenRTB hit the adapter endpoint; the
// decision itself is made by pkg/bidding on the translated request.
package rtb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/bidding"
)

// ErrNoImpression is returned for OpenRTB requests without impressions.
var ErrNoImpression = errors.New("bid request has no impressions")

// DefaultPlatform is assumed when the request ext carries no platform hint.
const DefaultPlatform = "programmatic"

// requestExt is the slice of the request-level ext we understand
type requestExt struct {
	Platform string `json:"platform"`
}

// FromOpenRTB translates an OpenRTB 2.x bid request into a native bid
// request. Only the first impression is considered; multi-impression
// requests decide on imp[0] like single-slot traffic.
func FromOpenRTB(req *openrtb2.BidRequest) (*bidding.BidRequest, error) {
	if len(req.Imp) == 0 {
		return nil, ErrNoImpression
	}
	imp := req.Imp[0]

	out := &bidding.BidRequest{
		RequestID: req.ID,
		Inventory: bidding.Inventory{
			InventoryID: imp.TagID,
			Platform:    platformOf(req),
			FloorPrice:  decimal.NewFromFloat(imp.BidFloor),
		},
	}

	if req.TMax > 0 {
		out.TimeoutMS = int(req.TMax)
	}

	switch {
	case imp.Banner != nil:
		out.Inventory.PlacementType = "banner"
		if imp.Banner.W != nil && imp.Banner.H != nil {
			out.Inventory.Dimensions = fmt.Sprintf("%dx%d", *imp.Banner.W, *imp.Banner.H)
		}
	case imp.Video != nil:
		out.Inventory.PlacementType = "video"
		if imp.Video.W != nil && imp.Video.H != nil {
			out.Inventory.Dimensions = fmt.Sprintf("%dx%d", *imp.Video.W, *imp.Video.H)
		}
	case imp.Native != nil:
		out.Inventory.PlacementType = "native"
	}

	if req.User != nil {
		out.UserProfile = profileOf(req.User)
	}
	if req.Device != nil {
		out.UserProfile.DeviceType = deviceType(req.Device)
		if out.UserProfile.Location == "" && req.Device.Geo != nil {
			out.UserProfile.Location = strings.ToLower(req.Device.Geo.Country)
		}
	}

	return out, nil
}

// ToOpenRTB translates a native decision into an OpenRTB 2.x response.
// A no-bid is an empty response carrying only the request ID, which
// exchanges interpret as declining the auction.
func ToOpenRTB(requestID string, out bidding.Outcome) *openrtb2.BidResponse {
	resp := &openrtb2.BidResponse{ID: requestID}
	if !out.IsBid() {
		return resp
	}

	price, _ := out.Bid.BidPrice.Float64()
	resp.Cur = "USD"
	resp.SeatBid = []openrtb2.SeatBid{{
		Bid: []openrtb2.Bid{{
			ID:    out.Bid.RequestID,
			ImpID: out.Bid.RequestID,
			Price: price,
			CID:   out.Bid.CampaignID,
			CrID:  out.Bid.CreativeID,
		}},
	}}
	return resp
}

func platformOf(req *openrtb2.BidRequest) string {
	if len(req.Ext) > 0 {
		var ext requestExt
		if err := json.Unmarshal(req.Ext, &ext); err == nil && ext.Platform != "" {
			return strings.ToLower(ext.Platform)
		}
	}
	return DefaultPlatform
}

func deviceType(dev *openrtb2.Device) string {
	switch dev.DeviceType {
	case 1, 4: // mobile/tablet, phone
		return "mobile"
	case 2: // personal computer
		return "desktop"
	case 3, 7: // connected tv, set top box
		return "ctv"
	case 5:
		return "tablet"
	default:
		return "unknown"
	}
}

// profileOf maps OpenRTB user signals into the targeting profile. Year
// of birth becomes an age range, keywords become interests, and data
// segments become behaviors.
func profileOf(user *openrtb2.User) bidding.UserProfile {
	profile := bidding.UserProfile{
		UserID:       user.ID,
		Demographics: map[string]string{},
	}

	if user.Yob > 0 {
		profile.Demographics["age_range"] = ageRange(int(user.Yob))
	}
	switch user.Gender {
	case "M":
		profile.Demographics["gender"] = "male"
	case "F":
		profile.Demographics["gender"] = "female"
	}

	if user.Keywords != "" {
		for _, kw := range strings.Split(user.Keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				profile.Interests = append(profile.Interests, strings.ToLower(kw))
			}
		}
	}

	for _, data := range user.Data {
		for _, seg := range data.Segment {
			if seg.Name != "" {
				profile.Behaviors = append(profile.Behaviors, strings.ToLower(seg.Name))
			}
		}
	}

	return profile
}

// currentYear is a var so tests can pin the age bucketing
var currentYear = 2025

func ageRange(yob int) string {
	age := currentYear - yob
	switch {
	case age < 25:
		return "18-24"
	case age < 35:
		return "25-34"
	case age < 50:
		return "35-50"
	case age < 65:
		return "50-65"
	default:
		return "60+"
	}
}
