package identity

// Identity is the anonymous device identity. DeviceID is generated once per
// installation; SubjectID and AccessToken are issued by the billing service
// on first registration and stay empty until then.
type Identity struct {
	DeviceID    string `json:"device_id"`
	SubjectID   string `json:"subject_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// Registered reports whether the service has issued credentials.
func (i *Identity) Registered() bool {
	return i != nil && i.SubjectID != "" && i.AccessToken != ""
}

// ShortSubject renders the subject id for display, eliding the middle of
// ids longer than eight characters.
func (i *Identity) ShortSubject() string {
	if i == nil || i.SubjectID == "" {
		return ""
	}
	if len(i.SubjectID) <= 8 {
		return i.SubjectID
	}
	return i.SubjectID[:4] + "..." + i.SubjectID[len(i.SubjectID)-4:]
}
