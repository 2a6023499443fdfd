package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"schoolrecords/internal/auth"
	"schoolrecords/internal/backup"
	"schoolrecords/internal/media"
	"schoolrecords/internal/records"
)

var testNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type capturePublisher struct {
	kinds []string
}

func (p *capturePublisher) Publish(_ context.Context, kind string, _ []byte) error {
	p.kinds = append(p.kinds, kind)
	return nil
}

type fixture struct {
	router  *gin.Engine
	store   *records.Store
	pub     *capturePublisher
	issuer  *auth.Issuer
	backups *backup.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return testNow }
	store := records.New(records.WithClock(clock))
	pub := &capturePublisher{}
	iss := auth.NewIssuer("schoolrecords", "test-key", time.Hour)
	svc := records.NewService(store, records.WithPublisher(pub))
	mgr := backup.NewManager(store, backup.NewMemorySink(), backup.WithClock(clock), backup.WithAuditor(svc))

	if _, err := store.CreateAccount(records.AccountInput{Username: "teacher", Password: "123", Role: records.RoleInstructor, DisplayName: "Priya Nair"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if _, err := store.CreateAccount(records.AccountInput{Username: "parent", Password: "123", Role: records.RoleGuardian, DisplayName: "Ravi Menon"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	r := gin.New()
	r.Use(auth.Identify(iss))
	New(svc, iss, append([]Option{WithBackups(mgr)}, opts...)...).Routes(r)
	return &fixture{router: r, store: store, pub: pub, issuer: iss, backups: mgr}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

const enrolleeBody = `{"name":"Aarav Menon","group":"LKG A","sequenceNumber":1,"guardianName":"Ravi Menon","guardianPhone":"+91 98470 11111"}`

func TestLogin(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"username":"teacher","password":"123"}`, http.StatusOK},
		{"wrong password", `{"username":"teacher","password":"1234"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"nobody","password":"123"}`, http.StatusUnauthorized},
		{"case sensitive", `{"username":"Teacher","password":"123"}`, http.StatusUnauthorized},
		{"bad json", `{"username":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/accounts/login", tc.body, "")
			if rec.Code != tc.want {
				t.Fatalf("got %d want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	rec := f.do(t, http.MethodPost, "/accounts/login", `{"username":"teacher","password":"123"}`, "")
	body := decode[map[string]any](t, rec)
	if body["role"] != "instructor" || body["displayName"] != "Priya Nair" || body["id"] != float64(1) {
		t.Fatalf("unexpected login body %+v", body)
	}
	if _, ok := body["password"]; ok {
		t.Fatalf("password must not be returned")
	}
	claims, err := f.issuer.Parse(body["accessToken"].(string))
	if err != nil || claims.AccountID() != 1 {
		t.Fatalf("unexpected token claims %+v err=%v", claims, err)
	}
	if exp, _ := body["expiresAt"].(string); exp == "" {
		t.Fatalf("missing expiresAt")
	}
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/accounts", `{"username":"teacher2","password":"x","role":"instructor","displayName":"Anu"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if rec = f.do(t, http.MethodPost, "/accounts", `{"username":"teacher2","password":"y","role":"guardian","displayName":"Dup"}`, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodPost, "/accounts", `{"username":"x","password":"y","role":"janitor","displayName":"X"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad role, got %d", rec.Code)
	}

	list := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/accounts", "", ""))
	if len(list) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(list))
	}
	for _, a := range list {
		if _, ok := a["password"]; ok {
			t.Fatalf("account list leaks password: %+v", a)
		}
	}
	staff := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/staff", "", ""))
	if len(staff) != 2 {
		t.Fatalf("expected 2 instructors, got %d", len(staff))
	}
}

func TestEnrollees(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/enrollees", enrolleeBody, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	raw := decode[map[string]any](t, rec)
	for _, k := range []string{"address", "dateOfBirth", "medicalNotes"} {
		v, ok := raw[k]
		if !ok || v != nil {
			t.Fatalf("expected explicit null for %s, got %v (present=%v)", k, v, ok)
		}
	}
	if raw["imageUrl"] != records.DefaultImageURL("Aarav Menon") {
		t.Fatalf("unexpected imageUrl %v", raw["imageUrl"])
	}

	rec = f.do(t, http.MethodPost, "/enrollees", `{"group":"LKG A","sequenceNumber":1,"guardianName":"G","guardianPhone":"1"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["field"] != "name" {
		t.Fatalf("expected field name, got %+v", body)
	}

	if rec = f.do(t, http.MethodGet, "/enrollees/1", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/enrollees/42", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/enrollees/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}

	replaced := strings.Replace(enrolleeBody, "LKG A", "UKG A", 1)
	rec = f.do(t, http.MethodPut, "/enrollees/1", replaced, "")
	if rec.Code != http.StatusOK || decode[records.Enrollee](t, rec).Group != "UKG A" {
		t.Fatalf("replace: %d %s", rec.Code, rec.Body.String())
	}
	if rec = f.do(t, http.MethodPut, "/enrollees/9", replaced, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on replace, got %d", rec.Code)
	}
	if list := decode[[]records.Enrollee](t, f.do(t, http.MethodGet, "/enrollees", "", "")); len(list) != 1 {
		t.Fatalf("expected one enrollee, got %d", len(list))
	}
}

func TestPresenceFlow(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/enrollees", enrolleeBody, "")
	f.do(t, http.MethodPost, "/enrollees", strings.Replace(enrolleeBody, "Aarav", "Diya", 1), "")
	tok, _ := f.issuer.Issue(1, "teacher", "instructor", "Priya Nair")

	rec := f.do(t, http.MethodPost, "/presence", `{"enrolleeId":1,"present":true}`, tok.AccessToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("mark: %d %s", rec.Code, rec.Body.String())
	}
	r := decode[records.PresenceRecord](t, rec)
	if r.Date != "2024-06-03" || r.MarkedBy != "Priya Nair" {
		t.Fatalf("unexpected defaults %+v", r)
	}
	if rec = f.do(t, http.MethodPost, "/presence", `{"enrolleeId":1}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without present, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodPost, "/presence", `{"enrolleeId":1,"date":"03/06/2024","present":true}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
	f.do(t, http.MethodPost, "/presence", `{"enrolleeId":1,"date":"2024-06-02","present":false,"markedBy":"Office"}`, "")

	if got := decode[[]records.PresenceRecord](t, f.do(t, http.MethodGet, "/presence?date=2024-06-03", "", "")); len(got) != 1 {
		t.Fatalf("expected one record for date, got %d", len(got))
	}
	if got := decode[[]records.PresenceRecord](t, f.do(t, http.MethodGet, "/presence", "", "")); len(got) != 2 {
		t.Fatalf("expected all records, got %d", len(got))
	}
	if got := decode[[]records.PresenceRecord](t, f.do(t, http.MethodGet, "/enrollees/1/presence", "", "")); len(got) != 2 {
		t.Fatalf("expected enrollee history, got %d", len(got))
	}

	roll := decode[[]records.RollEntry](t, f.do(t, http.MethodGet, "/presence/roll", "", ""))
	if len(roll) != 2 || roll[0].Status != records.StatePresent || roll[1].Status != records.StateUnmarked {
		t.Fatalf("unexpected roll %+v", roll)
	}

	log := f.store.ListActivity()
	if len(log) != 4 || log[0].ActorName != "System" || log[1].Action != "Mark" || log[1].ActorName != "Priya Nair" {
		t.Fatalf("unexpected activity %+v", log)
	}
}

func TestObligations(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/enrollees", enrolleeBody, "")

	rec := f.do(t, http.MethodPost, "/obligations", `{"enrolleeId":1,"amount":2500,"period":"June 2024","status":"pending","dueDate":"2024-06-10T00:00:00Z"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/obligations", `{"enrolleeId":99,"amount":1000,"period":"June 2024","status":"paid","dueDate":"2024-06-10T00:00:00Z","paidDate":"2024-06-11T00:00:00Z"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create orphan: %d %s", rec.Code, rec.Body.String())
	}
	if rec = f.do(t, http.MethodPost, "/obligations", `{"enrolleeId":1,"amount":10,"period":"x","status":"paid","dueDate":"2024-06-10T00:00:00Z"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for paid without paidDate, got %d", rec.Code)
	}

	views := decode[[]records.ObligationView](t, f.do(t, http.MethodGet, "/obligations", "", ""))
	if len(views) != 2 || views[0].EnrolleeName != "Aarav Menon" || views[1].EnrolleeName != records.UnknownName {
		t.Fatalf("unexpected join %+v", views)
	}

	rec = f.do(t, http.MethodPost, "/obligations/1/settle", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: %d %s", rec.Code, rec.Body.String())
	}
	settled := decode[records.PaymentObligation](t, rec)
	if settled.Status != records.StatusPaid || settled.PaidDate == nil || !settled.PaidDate.Equal(testNow) {
		t.Fatalf("unexpected settled obligation %+v", settled)
	}
	if rec = f.do(t, http.MethodPost, "/obligations/1/settle", "", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double settle, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodPost, "/obligations/7/settle", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode[[]records.PaymentObligation](t, f.do(t, http.MethodGet, "/enrollees/1/obligations", "", "")); len(got) != 1 {
		t.Fatalf("expected one obligation for enrollee, got %d", len(got))
	}

	stats := decode[records.DashboardStats](t, f.do(t, http.MethodGet, "/stats", "", ""))
	if stats.TotalCollected != 3500 || stats.TotalPending != 0 || stats.PendingObligationCount != 0 || stats.TotalStaff != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	rep := decode[records.Report](t, f.do(t, http.MethodGet, "/reports", "", ""))
	if rep.FeeCollection.Total != rep.FeeCollection.Collected+rep.FeeCollection.Pending || rep.Attendance.Unmarked != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestAnnouncements(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/announcements", `{"title":"Sports Day","content":"Friday","publishedAt":"2024-06-01T08:00:00Z"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if a := decode[records.Announcement](t, rec); a.Category != records.CategoryGeneral {
		t.Fatalf("expected default category, got %s", a.Category)
	}
	f.do(t, http.MethodPost, "/announcements", `{"title":"Holiday","content":"Monday","category":"holiday"}`, "")
	if rec = f.do(t, http.MethodPost, "/announcements", `{"title":"x","content":"y","category":"gossip"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad category, got %d", rec.Code)
	}

	list := decode[[]records.Announcement](t, f.do(t, http.MethodGet, "/announcements", "", ""))
	if len(list) != 2 || list[0].Title != "Holiday" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if len(f.pub.kinds) != 2 || f.pub.kinds[0] != records.AnnouncementMessage {
		t.Fatalf("expected two broadcasts, got %v", f.pub.kinds)
	}
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPut, "/settings", `{"name":`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad JSON, got %d", rec.Code)
	}
	rec := f.do(t, http.MethodPut, "/settings", `{"name":"Little Blossoms","foundedYear":2012}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	f.do(t, http.MethodPut, "/settings", `{"tagline":"Grow"}`, "")
	got := decode[records.OrganizationProfile](t, f.do(t, http.MethodGet, "/settings", "", ""))
	if got.Name != "Little Blossoms" || got.FoundedYear != 2012 || got.Tagline != "Grow" {
		t.Fatalf("unexpected merged settings %+v", got)
	}
	if rec = f.do(t, http.MethodPut, "/settings", `{"email":"not-an-email"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", rec.Code)
	}

	log := decode[[]records.ActivityLogEntry](t, f.do(t, http.MethodGet, "/activity-log", "", ""))
	if len(log) != 2 || log[0].Detail != "tagline" || log[0].Target != "Settings" {
		t.Fatalf("unexpected activity %+v", log)
	}
}

func TestSystemStats(t *testing.T) {
	f := newFixture(t)
	stats := decode[records.SystemStats](t, f.do(t, http.MethodGet, "/system-stats", "", ""))
	if stats.TotalAccounts != 2 || stats.TotalStaffByRole[records.RoleGuardian] != 1 || stats.TotalStaffByRole[records.RoleOwner] != 0 {
		t.Fatalf("unexpected system stats %+v", stats)
	}
	if stats.SystemHealth != "Healthy" || stats.Uptime != "0m" {
		t.Fatalf("unexpected labels %+v", stats)
	}
}

func TestBackups(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/enrollees", enrolleeBody, "")

	rec := f.do(t, http.MethodPost, "/backups", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create backup: %d %s", rec.Code, rec.Body.String())
	}
	info := decode[backup.Info](t, rec)

	f.do(t, http.MethodPost, "/enrollees", strings.Replace(enrolleeBody, "Aarav", "Diya", 1), "")
	if n := len(f.store.ListEnrollees()); n != 2 {
		t.Fatalf("expected 2 enrollees before restore, got %d", n)
	}

	if rec = f.do(t, http.MethodPost, "/backups/"+info.ID+"/restore", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", rec.Code, rec.Body.String())
	}
	if n := len(f.store.ListEnrollees()); n != 1 {
		t.Fatalf("expected 1 enrollee after restore, got %d", n)
	}
	// ids keep increasing after a restore
	rec = f.do(t, http.MethodPost, "/enrollees", strings.Replace(enrolleeBody, "Aarav", "Kiran", 1), "")
	if e := decode[records.Enrollee](t, rec); e.ID != 3 {
		t.Fatalf("expected id 3 after restore, got %d", e.ID)
	}

	if rec = f.do(t, http.MethodPost, "/backups/missing/restore", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if list := decode[[]backup.Info](t, f.do(t, http.MethodGet, "/backups", "", "")); len(list) != 1 {
		t.Fatalf("expected one backup, got %d", len(list))
	}

	gin.SetMode(gin.TestMode)
	bare := gin.New()
	New(records.NewService(records.New()), f.issuer).Routes(bare)
	w := httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backups", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without backups, got %d", w.Code)
	}
}

func TestUploads(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/uploads", `{"data":"data:image/png;base64,AAAA"}`, ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without cloudinary, got %d", rec.Code)
	}

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"public_id":"p1","secure_url":"https://res.example/p1.png","width":4,"height":4,"bytes":3}`))
	}))
	defer cdn.Close()
	u := media.New("demo", "key", "secret", "")
	u.BaseURL = cdn.URL
	f = newFixture(t, WithUploader(u))

	rec := f.do(t, http.MethodPost, "/uploads", `{"data":"data:image/png;base64,AAAA"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if body := decode[map[string]any](t, rec); body["url"] != "https://res.example/p1.png" {
		t.Fatalf("unexpected upload body %+v", body)
	}
	if rec = f.do(t, http.MethodPost, "/uploads", `{}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without data, got %d", rec.Code)
	}

	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\nabc\r\n--b--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("multipart upload: %d %s", w.Code, w.Body.String())
	}
}

func TestObligationDates(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/enrollees", enrolleeBody, "")

	rec := f.do(t, http.MethodPost, "/obligations", `{"enrolleeId":1,"amount":2500,"period":"June 2024","status":"pending","dueDate":"2024-06-10"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("plain date should be accepted: %d %s", rec.Code, rec.Body.String())
	}
	o := decode[records.PaymentObligation](t, rec)
	if !o.DueDate.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date %v", o.DueDate)
	}

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"bad due date", `{"enrolleeId":1,"amount":1,"period":"x","status":"pending","dueDate":"10/06/2024"}`, "dueDate"},
		{"missing due date", `{"enrolleeId":1,"amount":1,"period":"x","status":"pending"}`, "dueDate"},
		{"bad paid date", `{"enrolleeId":1,"amount":1,"period":"x","status":"paid","dueDate":"2024-06-10","paidDate":"soon"}`, "paidDate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/obligations", tc.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if body := decode[map[string]any](t, rec); body["field"] != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, body)
			}
		})
	}

	// paying before the due date is allowed
	rec = f.do(t, http.MethodPost, "/obligations/1/settle", `{"paidDate":"2024-06-01"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle with plain date: %d %s", rec.Code, rec.Body.String())
	}
	settled := decode[records.PaymentObligation](t, rec)
	if settled.PaidDate == nil || !settled.PaidDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected paid date %+v", settled.PaidDate)
	}
	if rec = f.do(t, http.MethodPost, "/obligations/1/settle", `{"paidDate":"June 1st"}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparseable paid date, got %d", rec.Code)
	}
}
