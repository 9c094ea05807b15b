package db

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ========================================
// SHIFT MODELS
// ========================================

type Shift struct {
	ID             string
	Date           time.Time
	Slot           string
	State          string
	StartedAt      sql.NullTime
	ScheduledEndAt sql.NullTime
	EndedAt        sql.NullTime
	CreatedAt      time.Time
}

// ========================================
// CATALOG MODELS
// ========================================

type ProductsCatalogVersion struct {
	Version     int
	Active      bool
	ActivatedAt sql.NullTime
}

type Product struct {
	ID       string
	Version  int
	NormName string
	Family   int
}

type RoutesCatalogVersion struct {
	Version     int
	Active      bool
	ActivatedAt sql.NullTime
}

type Route struct {
	ID       string
	Version  int
	NormName string
}

// ========================================
// LOTE / CLIENT ORDER / LINE MODELS
// ========================================

type Lote struct {
	ID                     string
	ImapUIDValidity        sql.NullInt64
	ImapUID                sql.NullInt64
	ReceivedAt             time.Time
	SubjectRaw             string
	BodyRaw                string
	ParseStatus            string
	ParseError             sql.NullString
	RouteNorm              sql.NullString
	ProductsCatalogVersion sql.NullInt64
	RoutesCatalogVersion   sql.NullInt64
	OriginalShift          string
	CarriedOver            bool
	CreatedAt              time.Time
}

const (
	ParseStatusPending     = "PENDING"
	ParseStatusOK          = "OK"
	ParseStatusErrorRoute  = "ERROR_ROUTE"
	ParseStatusErrorParse  = "ERROR_PARSE"
)

type ClientOrder struct {
	ID           string
	LoteID       string
	NameRaw      string
	AffinityKey  string
	Observations sql.NullString
	CreatedAt    time.Time
}

type Line struct {
	ID             string
	ClientOrderID  string
	SeqInClient    int
	Quantity       float64
	UnitRaw        string
	ProductRaw     string
	ProductNorm    string
	Price          sql.NullFloat64
	Currency       string
	MatchMethod    sql.NullString
	MatchScore     sql.NullFloat64
	Family         int
	FunctionalCode int
	OperatorID     sql.NullString
	AssignedAt     sql.NullTime
	PrintedAt      sql.NullTime
	PrintCount     int
	CreatedAt      time.Time
}

const (
	MatchMethodExact = "EXACT"
	MatchMethodFuzzy = "FUZZY"
)

// ========================================
// ROUTE DAY MODEL
// ========================================

type RouteDay struct {
	ShiftID            string
	RouteNorm          string
	VisualState        string
	LogicalState       string
	ReactivationsCount int
	LastEventAt        time.Time
}

const (
	VisualBlue  = "BLUE"
	VisualGreen = "GREEN"
	VisualRed   = "RED"

	LogicalActive    = "ACTIVE"
	LogicalCollected = "COLLECTED"
)

// ========================================
// ASSIGNMENT MODELS
// ========================================

type OwnerAffinity struct {
	ShiftID        string
	AffinityKey    string
	FunctionalCode int
	OperatorID     string
}

type RoundRobinCursor struct {
	ShiftID        string
	FunctionalCode int
	LastOperatorID sql.NullString
}

// ========================================
// PRINT PROGRESS MODELS
// ========================================

type OperatorRouteProgress struct {
	ShiftID         string
	OperatorID      string
	RouteNorm       string
	EnteredAt       time.Time
	CutoffLote      sql.NullString
	LastPrintedLote sql.NullString
	LastPrintedAt   sql.NullTime
}

type CollectorRouteProgress struct {
	ShiftID        string
	RouteNorm      string
	LastClosedLote sql.NullString
	LastClosedAt   sql.NullTime
}

// ========================================
// PRINT JOB MODELS
// ========================================

type PrintJob struct {
	ID         string
	ShiftID    string
	RouteNorm  string
	ActorUser  sql.NullString
	Kind       string
	Status     string
	PDFRef     sql.NullString
	ErrorText  sql.NullString
	CutoffLote sql.NullString
	FromLote   sql.NullString
	ToLote     sql.NullString
	CreatedAt  time.Time
}

const (
	PrintKindOperatorInitial = "OPERATOR_INITIAL"
	PrintKindOperatorNew     = "OPERATOR_NEW"
	PrintKindCollectorNew    = "COLLECTOR_NEW"
	PrintKindReprint         = "REPRINT"

	PrintStatusCreated  = "CREATED"
	PrintStatusPDFReady = "PDF_READY"
	PrintStatusSent     = "SENT"
	PrintStatusFailed   = "FAILED"
)

// ========================================
// IMAP CURSOR MODEL
// ========================================

type ImapCursor struct {
	LastUID     int64
	UIDValidity sql.NullInt64
	LastPollAt  sql.NullTime
}

// ========================================
// EVENT MODEL
// ========================================

type Event struct {
	ID         string
	TS         time.Time
	Actor      sql.NullString
	Type       string
	EntityType string
	EntityID   string
	Payload    json.RawMessage
}
