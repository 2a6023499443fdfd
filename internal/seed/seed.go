// Package seed bootstraps a records store from a YAML fixture.
package seed

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"schoolrecords/internal/logger"
	"schoolrecords/internal/records"
)

//go:embed default.yaml
var defaultFixture []byte

// Fixture is the bootstrap data set.
type Fixture struct {
	Organization  records.OrganizationProfile `yaml:"organization"`
	Accounts      []Account                   `yaml:"accounts"`
	Enrollees     []records.EnrolleeInput     `yaml:"enrollees"`
	Announcements []Announcement              `yaml:"announcements"`
	Activity      []Activity                  `yaml:"activity"`
	Fees          FeeSchedule                 `yaml:"fees"`
}

// Account is a fixture account.
type Account struct {
	Username    string       `yaml:"username"`
	Password    string       `yaml:"password"`
	Role        records.Role `yaml:"role"`
	DisplayName string       `yaml:"displayName"`
}

// Announcement is placed DaysAgo before the bootstrap time.
type Announcement struct {
	Title    string           `yaml:"title"`
	Content  string           `yaml:"content"`
	Category records.Category `yaml:"category"`
	DaysAgo  int              `yaml:"daysAgo"`
}

// Activity is placed HoursAgo before the bootstrap time.
type Activity struct {
	ActorName string `yaml:"actorName"`
	ActorRole string `yaml:"actorRole"`
	Action    string `yaml:"action"`
	Target    string `yaml:"target"`
	Detail    string `yaml:"detail"`
	HoursAgo  int    `yaml:"hoursAgo"`
}

// FeeSchedule drives obligation generation over a rolling monthly window
// ending at the current month.
type FeeSchedule struct {
	Periods        int            `yaml:"periods"`
	PendingPeriods int            `yaml:"pendingPeriods"`
	DueDay         int            `yaml:"dueDay"`
	PaidWithinDays int            `yaml:"paidWithinDays"`
	DefaultAmount  int            `yaml:"defaultAmount"`
	Amounts        map[string]int `yaml:"amounts"`
}

// AmountFor returns the fee for group, falling back to DefaultAmount.
func (f FeeSchedule) AmountFor(group string) int {
	if amount, ok := f.Amounts[group]; ok {
		return amount
	}
	return f.DefaultAmount
}

// Default returns the embedded fixture.
func Default() (Fixture, error) {
	return Parse(defaultFixture)
}

// Parse decodes a YAML fixture.
func Parse(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse seed fixture: %w", err)
	}
	return f, nil
}

// Load reads the fixture at path, or the embedded default when path is empty.
func Load(path string) (Fixture, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read seed fixture: %w", err)
	}
	return Parse(data)
}

// Options controls the randomness and reference time of a bootstrap run.
type Options struct {
	// Rand drives paid-date jitter; nil uses a time-seeded source.
	Rand *rand.Rand
	// Now anchors relative timestamps and the fee window; zero uses the store clock.
	Now time.Time
}

// NewRand returns a reproducible source for seed != 0 and a time-seeded one otherwise.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// Result counts what a bootstrap run inserted and skipped.
type Result struct {
	Accounts      int
	Enrollees     int
	Obligations   int
	Announcements int
	Activity      int
	Skipped       int
}

// Apply inserts the fixture into store. A failing insert is logged and
// skipped so the store always ends up usable.
func Apply(store *records.Store, f Fixture, opts Options) Result {
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.Now.IsZero() {
		opts.Now = store.Now()
	}
	var res Result
	skip := func(kind string, index int, err error) {
		res.Skipped++
		logger.Warn().Err(err).Str("kind", kind).Int("index", index).Msg("seed insert skipped")
	}

	if f.Organization != (records.OrganizationProfile{}) {
		if _, err := store.UpdateSettings(profilePatch(f.Organization)); err != nil {
			skip("organization", 0, err)
		}
	}

	for i, a := range f.Accounts {
		_, err := store.CreateAccount(records.AccountInput{
			Username:    a.Username,
			Password:    a.Password,
			Role:        a.Role,
			DisplayName: a.DisplayName,
		})
		if err != nil {
			skip("account", i, err)
			continue
		}
		res.Accounts++
	}

	var enrollees []records.Enrollee
	for i, in := range f.Enrollees {
		e, err := store.CreateEnrollee(in)
		if err != nil {
			skip("enrollee", i, err)
			continue
		}
		enrollees = append(enrollees, e)
		res.Enrollees++
	}

	for i, a := range f.Announcements {
		published := opts.Now.AddDate(0, 0, -a.DaysAgo)
		_, err := store.CreateAnnouncement(records.AnnouncementInput{
			Title:       a.Title,
			Content:     a.Content,
			Category:    a.Category,
			PublishedAt: &published,
		})
		if err != nil {
			skip("announcement", i, err)
			continue
		}
		res.Announcements++
	}

	for _, a := range f.Activity {
		store.AppendActivity(records.ActivityLogEntry{
			ActorName: a.ActorName,
			ActorRole: a.ActorRole,
			Action:    a.Action,
			Target:    a.Target,
			Detail:    a.Detail,
			At:        opts.Now.Add(-time.Duration(a.HoursAgo) * time.Hour),
		})
		res.Activity++
	}

	for _, e := range enrollees {
		for j, in := range Obligations(e, f.Fees, opts.Now, opts.Rand) {
			if _, err := store.CreateObligation(in); err != nil {
				skip("obligation", j, err)
				continue
			}
			res.Obligations++
		}
	}

	logger.Info().
		Int("accounts", res.Accounts).
		Int("enrollees", res.Enrollees).
		Int("obligations", res.Obligations).
		Int("announcements", res.Announcements).
		Int("skipped", res.Skipped).
		Msg("store seeded")
	return res
}

// Obligations builds one obligation per period in the window, oldest first.
// All but the newest PendingPeriods are paid a random 0..PaidWithinDays
// days after their due date.
func Obligations(e records.Enrollee, fees FeeSchedule, now time.Time, rng *rand.Rand) []records.ObligationInput {
	if fees.Periods <= 0 {
		return nil
	}
	dueDay := fees.DueDay
	if dueDay < 1 || dueDay > 28 {
		dueDay = 10
	}
	out := make([]records.ObligationInput, 0, fees.Periods)
	for k := fees.Periods - 1; k >= 0; k-- {
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -k, 0)
		due := time.Date(month.Year(), month.Month(), dueDay, 0, 0, 0, 0, now.Location())
		in := records.ObligationInput{
			EnrolleeID: e.ID,
			Amount:     fees.AmountFor(e.Group),
			Period:     month.Format("January 2006"),
			Status:     records.StatusPending,
			DueDate:    due,
		}
		if k >= fees.PendingPeriods {
			jitter := 0
			if fees.PaidWithinDays > 0 {
				jitter = rng.IntN(fees.PaidWithinDays + 1)
			}
			paid := due.AddDate(0, 0, jitter)
			in.Status = records.StatusPaid
			in.PaidDate = &paid
		}
		out = append(out, in)
	}
	return out
}

func profilePatch(p records.OrganizationProfile) records.SettingsPatch {
	patch := records.SettingsPatch{
		Name:           &p.Name,
		Address:        &p.Address,
		Phone:          &p.Phone,
		AcademicPeriod: &p.AcademicPeriod,
		LeaderName:     &p.LeaderName,
		Tagline:        &p.Tagline,
	}
	if p.FoundedYear != 0 {
		patch.FoundedYear = &p.FoundedYear
	}
	if p.Email != "" {
		patch.Email = &p.Email
	}
	if p.Website != "" {
		patch.Website = &p.Website
	}
	if p.LogoURL != "" {
		patch.LogoURL = &p.LogoURL
	}
	return patch
}
