package records

import "sort"

// GetSettings returns the organization profile.
func (s *Store) GetSettings() OrganizationProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.profile
}

// UpdateSettings overwrites the fields present in patch and leaves the rest.
func (s *Store) UpdateSettings(patch SettingsPatch) (OrganizationProfile, error) {
	if err := validateStruct(patch); err != nil {
		return OrganizationProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &s.state.profile
	setString(&p.Name, patch.Name)
	setString(&p.Address, patch.Address)
	setString(&p.Phone, patch.Phone)
	setString(&p.Email, patch.Email)
	setString(&p.Website, patch.Website)
	setString(&p.AcademicPeriod, patch.AcademicPeriod)
	setString(&p.LeaderName, patch.LeaderName)
	setString(&p.Tagline, patch.Tagline)
	setString(&p.LogoURL, patch.LogoURL)
	if patch.FoundedYear != nil {
		p.FoundedYear = *patch.FoundedYear
	}
	return *p, nil
}

// Fields lists the json names of the fields set in the patch.
func (p SettingsPatch) Fields() []string {
	var out []string
	add := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	add("name", p.Name != nil)
	add("address", p.Address != nil)
	add("phone", p.Phone != nil)
	add("email", p.Email != nil)
	add("website", p.Website != nil)
	add("academicPeriod", p.AcademicPeriod != nil)
	add("leaderName", p.LeaderName != nil)
	add("tagline", p.Tagline != nil)
	add("foundedYear", p.FoundedYear != nil)
	add("logoUrl", p.LogoURL != nil)
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// AppendActivity records an audit entry. A zero At is stamped with now.
func (s *Store) AppendActivity(entry ActivityLogEntry) ActivityLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.seq.Activity++
	entry.ID = s.state.seq.Activity
	if entry.At.IsZero() {
		entry.At = s.nowFn()
	}
	s.state.activity = append(s.state.activity, entry)
	return entry
}

// ListActivity returns the log newest first, later entries winning ties.
func (s *Store) ListActivity() []ActivityLogEntry {
	s.mu.RLock()
	out := append([]ActivityLogEntry{}, s.state.activity...)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
