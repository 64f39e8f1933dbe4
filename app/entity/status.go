package entity

import "encoding/json"

type StatusReason struct {
	ReasonCode        string `json:"reasonCode"`
	ReasonDescription string `json:"reasonDescription"`
}

// StatusSnapshot is the cached vendor status of a charge or charge permission.
type StatusSnapshot struct {
	Status  string         `json:"status"`
	Reasons []StatusReason `json:"reasons"`
}

// ParseStatusSnapshot returns nil for an empty value.
func ParseStatusSnapshot(raw string) (*StatusSnapshot, error) {
	if raw == "" {
		return nil, nil
	}
	var snapshot StatusSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s StatusSnapshot) Encode() (string, error) {
	if s.Reasons == nil {
		s.Reasons = []StatusReason{}
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
