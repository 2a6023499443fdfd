package records

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleInstructor    Role = "instructor"
	RoleGuardian      Role = "guardian"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleOwner, RoleAdministrator, RoleInstructor, RoleGuardian}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Category classifies an announcement.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryEvent     Category = "event"
	CategoryEmergency Category = "emergency"
	CategoryHoliday   Category = "holiday"
)

// ObligationStatus is pending until settled.
type ObligationStatus string

const (
	StatusPending ObligationStatus = "pending"
	StatusPaid    ObligationStatus = "paid"
)

// PresenceState is the derived display status of an enrollee on a date.
type PresenceState string

const (
	StatePresent  PresenceState = "present"
	StateAbsent   PresenceState = "absent"
	StateUnmarked PresenceState = "unmarked"
)

// DateLayout is the calendar date format used for presence records.
const DateLayout = "2006-01-02"

// UnknownName substitutes for an enrollee that no longer resolves in joined views.
const UnknownName = "Unknown"

// Account is a login-capable identity.
type Account struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
}

// AccountInput is the payload for CreateAccount.
type AccountInput struct {
	Username    string `json:"username" validate:"required,max=64"`
	Password    string `json:"password" validate:"required"`
	Role        Role   `json:"role" validate:"required,oneof=owner administrator instructor guardian"`
	DisplayName string `json:"displayName" validate:"required,max=120"`
}

// Enrollee is an individual enrolled in the organization.
type Enrollee struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Group          string  `json:"group"`
	SequenceNumber int     `json:"sequenceNumber"`
	GuardianName   string  `json:"guardianName"`
	GuardianPhone  string  `json:"guardianPhone"`
	Address        *string `json:"address"`
	DateOfBirth    *string `json:"dateOfBirth"`
	MedicalNotes   *string `json:"medicalNotes"`
	ImageURL       string  `json:"imageUrl"`
}

// EnrolleeInput is the payload for CreateEnrollee and ReplaceEnrollee.
type EnrolleeInput struct {
	Name           string  `json:"name" yaml:"name" validate:"required,max=120"`
	Group          string  `json:"group" yaml:"group" validate:"required,max=60"`
	SequenceNumber int     `json:"sequenceNumber" yaml:"sequenceNumber" validate:"gte=1"`
	GuardianName   string  `json:"guardianName" yaml:"guardianName" validate:"required"`
	GuardianPhone  string  `json:"guardianPhone" yaml:"guardianPhone" validate:"required,max=32"`
	Address        *string `json:"address" yaml:"address"`
	DateOfBirth    *string `json:"dateOfBirth" yaml:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	MedicalNotes   *string `json:"medicalNotes" yaml:"medicalNotes"`
	ImageURL       string  `json:"imageUrl" yaml:"imageUrl" validate:"omitempty,url"`
}

// PresenceRecord is one marked attendance event.
type PresenceRecord struct {
	ID         int       `json:"id"`
	EnrolleeID int       `json:"enrolleeId"`
	Date       string    `json:"date"`
	Present    bool      `json:"present"`
	MarkedBy   string    `json:"markedBy"`
	MarkedAt   time.Time `json:"markedAt"`
}

// PaymentObligation is a fee due for an enrollee in a period.
type PaymentObligation struct {
	ID         int              `json:"id"`
	EnrolleeID int              `json:"enrolleeId"`
	Amount     int              `json:"amount"`
	Period     string           `json:"period"`
	Status     ObligationStatus `json:"status"`
	DueDate    time.Time        `json:"dueDate"`
	PaidDate   *time.Time       `json:"paidDate"`
}

// ObligationInput is the payload for CreateObligation.
type ObligationInput struct {
	EnrolleeID int              `json:"enrolleeId" validate:"gt=0"`
	Amount     int              `json:"amount" validate:"gt=0"`
	Period     string           `json:"period" validate:"required,max=40"`
	Status     ObligationStatus `json:"status" validate:"required,oneof=pending paid"`
	DueDate    time.Time        `json:"dueDate"`
	PaidDate   *time.Time       `json:"paidDate"`
}

// ObligationView is an obligation joined with its enrollee's name.
type ObligationView struct {
	PaymentObligation
	EnrolleeName string `json:"enrolleeName"`
}

// Announcement is a broadcast notice.
type Announcement struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    Category  `json:"category"`
	PublishedAt time.Time `json:"publishedAt"`
}

// AnnouncementInput is the payload for CreateAnnouncement.
type AnnouncementInput struct {
	Title       string     `json:"title" yaml:"title" validate:"required,max=200"`
	Content     string     `json:"content" yaml:"content" validate:"required"`
	Category    Category   `json:"category" yaml:"category" validate:"omitempty,oneof=general event emergency holiday"`
	PublishedAt *time.Time `json:"publishedAt" yaml:"publishedAt"`
}

// OrganizationProfile is the singleton settings record.
type OrganizationProfile struct {
	Name           string `json:"name" yaml:"name"`
	Address        string `json:"address" yaml:"address"`
	Phone          string `json:"phone" yaml:"phone"`
	Email          string `json:"email" yaml:"email"`
	Website        string `json:"website" yaml:"website"`
	AcademicPeriod string `json:"academicPeriod" yaml:"academicPeriod"`
	LeaderName     string `json:"leaderName" yaml:"leaderName"`
	Tagline        string `json:"tagline" yaml:"tagline"`
	FoundedYear    int    `json:"foundedYear" yaml:"foundedYear"`
	LogoURL        string `json:"logoUrl" yaml:"logoUrl"`
}

// SettingsPatch carries the fields to overwrite; nil fields keep their value.
type SettingsPatch struct {
	Name           *string `json:"name"`
	Address        *string `json:"address"`
	Phone          *string `json:"phone"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Website        *string `json:"website" validate:"omitempty,url"`
	AcademicPeriod *string `json:"academicPeriod"`
	LeaderName     *string `json:"leaderName"`
	Tagline        *string `json:"tagline"`
	FoundedYear    *int    `json:"foundedYear" validate:"omitempty,gte=1800,lte=2200"`
	LogoURL        *string `json:"logoUrl" validate:"omitempty,url"`
}

// ActivityLogEntry is one append-only audit line.
type ActivityLogEntry struct {
	ID        int       `json:"id"`
	ActorName string    `json:"actorName"`
	ActorRole string    `json:"actorRole"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}

// DashboardStats backs GET /stats.
type DashboardStats struct {
	TotalEnrollees         int    `json:"totalEnrollees"`
	TotalStaff             int    `json:"totalStaff"`
	PresentToday           int    `json:"presentToday"`
	PresentTodaySource     string `json:"presentTodaySource"`
	PendingObligationCount int    `json:"pendingObligationCount"`
	TotalCollected         int    `json:"totalCollected"`
	TotalPending           int    `json:"totalPending"`
}

// SystemStats backs GET /system-stats.
type SystemStats struct {
	TotalAccounts    int          `json:"totalAccounts"`
	TotalEnrollees   int          `json:"totalEnrollees"`
	TotalStaffByRole map[Role]int `json:"totalStaffByRole"`
	TotalRevenue     int          `json:"totalRevenue"`
	SystemHealth     string       `json:"systemHealth"`
	Uptime           string       `json:"uptime"`
	LastBackupAt     *time.Time   `json:"lastBackupAt"`
}

// GroupCount is one row of the class distribution.
type GroupCount struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// FeeCollection sums obligations by status.
type FeeCollection struct {
	Collected int `json:"collected"`
	Pending   int `json:"pending"`
	Total     int `json:"total"`
}

// AttendanceSummary counts derived presence states for one date.
type AttendanceSummary struct {
	Date     string `json:"date"`
	Present  int    `json:"present"`
	Absent   int    `json:"absent"`
	Unmarked int    `json:"unmarked"`
}

// Report backs GET /reports.
type Report struct {
	FeeCollection     FeeCollection     `json:"feeCollection"`
	ClassDistribution []GroupCount      `json:"classDistribution"`
	Attendance        AttendanceSummary `json:"attendance"`
}

// RollEntry is an enrollee with its derived presence for a date.
type RollEntry struct {
	Enrollee Enrollee        `json:"enrollee"`
	Status   PresenceState   `json:"status"`
	Record   *PresenceRecord `json:"record"`
}
