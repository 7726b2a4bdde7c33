package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/metrics"
	"github.com/pkordes/travelogue/internal/schema"
)

// importedSuffix is appended to the title of a trip imported as a copy.
const importedSuffix = " (imported)"

// ImportError reports why an import payload was rejected. It matches
// domain.ErrMalformedImport under errors.Is.
type ImportError struct {
	Fields schema.FieldErrors
}

func (e *ImportError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "malformed import payload: " + strings.Join(parts, "; ")
}

func (e *ImportError) Unwrap() error { return domain.ErrMalformedImport }

type rawBundle struct {
	Data        json.RawMessage   `json:"data"`
	Plans       []json.RawMessage `json:"plans"`
	Expenses    []json.RawMessage `json:"expenses"`
	Collections []json.RawMessage `json:"collections"`
}

type rawPackage struct {
	Version    *string      `json:"version"`
	ExportedAt *string      `json:"exportedAt"`
	UserID     *string      `json:"userId"`
	Trips      *[]rawBundle `json:"trips"`
}

type rawSinglePackage struct {
	Version    *string    `json:"version"`
	ExportedAt *string    `json:"exportedAt"`
	Trip       *rawBundle `json:"trip"`
}

// ParsePackage decodes and fully validates a Package.
func ParsePackage(r io.Reader) (Package, error) {
	var raw rawPackage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Package{}, &ImportError{Fields: schema.FieldErrors{schema.RootField: {err.Error()}}}
	}
	fe := schema.FieldErrors{}
	requireString(fe, "version", raw.Version)
	requireString(fe, "exportedAt", raw.ExportedAt)
	requireString(fe, "userId", raw.UserID)
	if raw.Trips == nil {
		fe.Add("trips", "is required")
	}

	pkg := Package{Version: deref(raw.Version), ExportedAt: deref(raw.ExportedAt), UserID: deref(raw.UserID)}
	if raw.Trips != nil {
		pkg.Trips = make([]TripBundle, len(*raw.Trips))
		for i, rb := range *raw.Trips {
			pkg.Trips[i] = parseBundle(fe, fmt.Sprintf("trips[%d]", i), rb)
		}
	}
	if len(fe) > 0 {
		return Package{}, &ImportError{Fields: fe}
	}
	return pkg, nil
}

// ParseSinglePackage decodes and fully validates a SinglePackage.
func ParseSinglePackage(r io.Reader) (SinglePackage, error) {
	var raw rawSinglePackage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return SinglePackage{}, &ImportError{Fields: schema.FieldErrors{schema.RootField: {err.Error()}}}
	}
	fe := schema.FieldErrors{}
	requireString(fe, "version", raw.Version)
	requireString(fe, "exportedAt", raw.ExportedAt)
	pkg := SinglePackage{Version: deref(raw.Version), ExportedAt: deref(raw.ExportedAt)}
	if raw.Trip == nil {
		fe.Add("trip", "is required")
	} else {
		pkg.Trip = parseBundle(fe, "trip", *raw.Trip)
	}
	if len(fe) > 0 {
		return SinglePackage{}, &ImportError{Fields: fe}
	}
	return pkg, nil
}

func parseBundle(fe schema.FieldErrors, at string, rb rawBundle) TripBundle {
	var b TripBundle
	b.Data = parseOne[domain.Trip](fe, at+".data", schema.KindTrip, rb.Data)
	b.Plans = parseAll[domain.DailyPlan](fe, at+".plans", schema.KindDailyPlan, rb.Plans)
	b.Expenses = parseAll[domain.Expense](fe, at+".expenses", schema.KindExpense, rb.Expenses)
	b.Collections = parseAll[domain.Collection](fe, at+".collections", schema.KindCollection, rb.Collections)
	return b
}

func parseAll[T any](fe schema.FieldErrors, at string, kind schema.Kind, raws []json.RawMessage) []T {
	if raws == nil {
		fe.Add(at, "is required")
		return nil
	}
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		out = append(out, parseOne[T](fe, fmt.Sprintf("%s[%d]", at, i), kind, raw))
	}
	return out
}

func parseOne[T any](fe schema.FieldErrors, at string, kind schema.Kind, raw json.RawMessage) T {
	if len(raw) == 0 {
		fe.Add(at, "is required")
		var zero T
		return zero
	}
	res := schema.Validate[T](kind, raw)
	for field, msgs := range res.Errors {
		key := at + "." + field
		if field == schema.RootField {
			key = at
		}
		for _, m := range msgs {
			fe.Add(key, m)
		}
	}
	return res.Value
}

func requireString(fe schema.FieldErrors, field string, v *string) {
	if v == nil {
		fe.Add(field, "is required")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ImportAll replaces all of userID's trips with the contents of a Package.
// The payload is validated in full first; on an ImportError nothing has
// been deleted or written. Restored documents keep their original ids and
// are re-owned by userID.
func (s *Service) ImportAll(ctx context.Context, userID string, r io.Reader) (err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("import_all", metrics.Result(err)).Inc() }()

	pkg, err := ParsePackage(r)
	if err != nil {
		return fmt.Errorf("backup.Service.ImportAll: %w", err)
	}
	if err := s.apply(ctx, userID, pkg); err != nil {
		return fmt.Errorf("backup.Service.ImportAll: %w", err)
	}
	return nil
}

// apply clears userID's data and writes pkg.
func (s *Service) apply(ctx context.Context, userID string, pkg Package) error {
	if err := s.ClearUserData(ctx, userID); err != nil {
		return err
	}
	for _, b := range pkg.Trips {
		tripID := b.Data.ID
		doc, err := tripDocument(b.Data)
		if err != nil {
			return err
		}
		doc["userId"] = userID
		if err := s.ds.Set(ctx, docstore.Trip(tripID), doc); err != nil {
			return fmt.Errorf("restore trip %s: %w", tripID, err)
		}
		if err := s.restoreChildren(ctx, tripID, b, true); err != nil {
			return err
		}
	}
	s.log.Info("backup: restored package", "user_id", userID, "trips", len(pkg.Trips))
	return nil
}

// ImportTrip adds the trip in a SinglePackage as a new trip owned by userID,
// with fresh ids for the trip and every child. It returns the new trip id.
func (s *Service) ImportTrip(ctx context.Context, userID string, r io.Reader) (_ string, err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("import_trip", metrics.Result(err)).Inc() }()

	pkg, err := ParseSinglePackage(r)
	if err != nil {
		return "", fmt.Errorf("backup.Service.ImportTrip: %w", err)
	}
	doc, err := tripDocument(pkg.Trip.Data)
	if err != nil {
		return "", fmt.Errorf("backup.Service.ImportTrip: %w", err)
	}
	doc["userId"] = userID
	doc["title"] = pkg.Trip.Data.Title + importedSuffix
	doc["createdAt"] = docstore.ServerTimestamp
	doc["updatedAt"] = docstore.ServerTimestamp

	tripID, err := s.ds.Create(ctx, docstore.CollectionTrips, doc)
	if err != nil {
		return "", fmt.Errorf("backup.Service.ImportTrip: %w", err)
	}
	if err := s.restoreChildren(ctx, tripID, pkg.Trip, false); err != nil {
		return "", fmt.Errorf("backup.Service.ImportTrip: %w", err)
	}
	s.log.Info("backup: imported trip", "user_id", userID, "trip_id", tripID)
	return tripID, nil
}

// restoreChildren writes a bundle's children under tripID, keeping their
// ids when keepIDs is set. Writes are sequential: with the embedded layout
// every child lives in the same trip document.
func (s *Service) restoreChildren(ctx context.Context, tripID string, b TripBundle, keepIDs bool) error {
	write := func(backend childWriter, id string, doc docstore.Document) error {
		if keepIDs && id != "" {
			return backend.Put(ctx, tripID, id, doc)
		}
		delete(doc, "id")
		_, err := backend.Create(ctx, tripID, doc)
		return err
	}

	for _, p := range b.Plans {
		doc, err := document(p, nil)
		if err != nil {
			return err
		}
		doc["tripId"] = tripID
		if err := write(s.children.Plans, p.ID, doc); err != nil {
			return fmt.Errorf("restore plan %s of %s: %w", p.Date, tripID, err)
		}
	}
	for _, e := range b.Expenses {
		doc, err := document(e, map[string]*time.Time{"createdAt": e.CreatedAt})
		if err != nil {
			return err
		}
		if err := write(s.children.Expenses, e.ID, doc); err != nil {
			return fmt.Errorf("restore expense %s of %s: %w", e.ID, tripID, err)
		}
	}
	for _, c := range b.Collections {
		doc, err := document(c, map[string]*time.Time{"createdAt": c.CreatedAt})
		if err != nil {
			return err
		}
		if err := write(s.children.Collections, c.ID, doc); err != nil {
			return fmt.Errorf("restore collection %s of %s: %w", c.ID, tripID, err)
		}
	}
	return nil
}

type childWriter interface {
	Create(ctx context.Context, tripID string, data docstore.Document) (string, error)
	Put(ctx context.Context, tripID, id string, data docstore.Document) error
}

// tripDocument is the stored form of a trip: no id, no embedded plans, and
// timestamps in the document store's timestamp form.
func tripDocument(t domain.Trip) (docstore.Document, error) {
	doc, err := document(t, map[string]*time.Time{"createdAt": t.CreatedAt, "updatedAt": t.UpdatedAt})
	if err != nil {
		return nil, err
	}
	delete(doc, "id")
	delete(doc, "plans")
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = docstore.ServerTimestamp
	}
	if _, ok := doc["updatedAt"]; !ok {
		doc["updatedAt"] = docstore.ServerTimestamp
	}
	return doc, nil
}

// document converts a validated entity back into a document. times holds
// the entity's timestamp fields; nil pointers are left out.
func document(v any, times map[string]*time.Time) (docstore.Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	for k, t := range times {
		delete(doc, k)
		if t != nil {
			doc[k] = *t
		}
	}
	return doc, nil
}
