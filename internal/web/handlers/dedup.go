package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/intake-dedup/internal/dedup"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/store"
)

// maxBodyBytes caps the size of a dedup request
const maxBodyBytes = 64 << 20

// RunStore persists dedup runs; *store.Store implements it
type RunStore interface {
	SaveRun(ctx context.Context, run store.Run, records []patient.Record) (uuid.UUID, error)
	GetRun(ctx context.Context, id uuid.UUID) (*store.Run, error)
	Assignments(ctx context.Context, id uuid.UUID) (map[string]string, error)
}

// DedupHandler runs the pipeline over posted records
type DedupHandler struct {
	Pipeline *dedup.Pipeline
	Store    RunStore // nil disables persistence and run lookup
	Logger   zerolog.Logger
}

// PatientID reads a JSON string or integer and always writes a string
type PatientID string

func (p *PatientID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PatientID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("patient_id must be a string or an integer, got %s", data)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("patient_id must be a string or an integer, got %s", data)
	}
	*p = PatientID(n.String())
	return nil
}

// IntakeRecord is the wire form of a patient record. date_of_birth is the
// raw YYYYMMDD string on input and the parsed date, or null, on output.
type IntakeRecord struct {
	PatientID    PatientID `json:"patient_id"`
	GivenName    string    `json:"given_name"`
	Surname      string    `json:"surname"`
	DateOfBirth  *string   `json:"date_of_birth"`
	StreetNumber *int      `json:"street_number"`
	Address1     string    `json:"address_1"`
	Address2     string    `json:"address_2"`
	Suburb       string    `json:"suburb"`
	Postcode     *string   `json:"postcode"`
	State        *string   `json:"state"`
	Age          *int      `json:"age"`
	PhoneNumber  string    `json:"phone_number"`
	DedupID      string    `json:"dedup_id,omitempty"`
}

func (in IntakeRecord) record() patient.Record {
	return patient.Record{
		PatientID:      string(in.PatientID),
		GivenName:      in.GivenName,
		Surname:        in.Surname,
		RawDateOfBirth: deref(in.DateOfBirth),
		StreetNumber:   in.StreetNumber,
		Address1:       in.Address1,
		Address2:       in.Address2,
		Suburb:         in.Suburb,
		Postcode:       deref(in.Postcode),
		State:          deref(in.State),
		Age:            in.Age,
		PhoneNumber:    in.PhoneNumber,
	}
}

func intakeRecord(r patient.Record) IntakeRecord {
	return IntakeRecord{
		PatientID:    PatientID(r.PatientID),
		GivenName:    r.GivenName,
		Surname:      r.Surname,
		DateOfBirth:  ref(r.DateOfBirthString()),
		StreetNumber: r.StreetNumber,
		Address1:     r.Address1,
		Address2:     r.Address2,
		Suburb:       r.Suburb,
		Postcode:     ref(r.Postcode),
		State:        ref(r.State),
		Age:          r.Age,
		PhoneNumber:  r.PhoneNumber,
		DedupID:      r.DedupID,
	}
}

// DedupResponse is returned by POST /api/dedup
type DedupResponse struct {
	RunID    *uuid.UUID          `json:"run_id,omitempty"`
	Records  []IntakeRecord      `json:"records"`
	Clusters map[string][]string `json:"clusters"`
	Stats    dedup.Stats         `json:"stats"`
}

// Dedup handles POST /api/dedup. The body is a JSON array of records;
// ?persist=true also stores the run when a store is configured.
func (h *DedupHandler) Dedup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in []IntakeRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid JSON request: "+err.Error(), http.StatusBadRequest)
		return
	}

	records := make([]patient.Record, len(in))
	for i, rec := range in {
		if rec.PatientID == "" {
			http.Error(w, "Every record needs a patient_id", http.StatusBadRequest)
			return
		}
		records[i] = rec.record()
	}

	persist := r.URL.Query().Get("persist") == "true"
	if persist && h.Store == nil {
		http.Error(w, "Persistence is not configured", http.StatusServiceUnavailable)
		return
	}

	res, err := h.Pipeline.Run(r.Context(), records)
	if err != nil {
		h.Logger.Error().Err(err).Int("records", len(records)).Msg("dedup run failed")
		http.Error(w, "Dedup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := DedupResponse{
		Records:  make([]IntakeRecord, len(res.Records)),
		Clusters: res.Groups(),
		Stats:    res.Stats,
	}
	for i, rec := range res.Records {
		response.Records[i] = intakeRecord(rec)
	}

	if persist {
		run := store.RunOf(res.Stats, h.Pipeline.Thresholds(), time.Now())
		id, err := h.Store.SaveRun(r.Context(), run, res.Records)
		if err != nil {
			h.Logger.Error().Err(err).Msg("failed to save dedup run")
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		response.RunID = &id
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// RunResponse is returned by GET /api/runs/{id}
type RunResponse struct {
	Run         *store.Run        `json:"run"`
	Assignments map[string]string `json:"assignments"`
}

// GetRun handles GET /api/runs/{id}
func (h *DedupHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "Persistence is not configured", http.StatusServiceUnavailable)
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to load run")
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	assignments, err := h.Store.Assignments(r.Context(), id)
	if err != nil {
		h.Logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to load assignments")
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RunResponse{Run: run, Assignments: assignments})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ref maps "" to nil so unknown values serialise as null
func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
