package configflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"nthweekday/internal/storage"
	"nthweekday/pkg/logx"
)

// Domain is the storage domain of every entry created here.
const Domain = "weekday_of_month"

const (
	SourceUser   = "user"
	SourceImport = "import"
)

// Entry is a validated sensor configuration.
type Entry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Weekdays   []string  `json:"weekdays"`
	NthWeekday []string  `json:"nth_weekday"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type entryData struct {
	Weekdays   []string `json:"weekdays"`
	NthWeekday []string `json:"nth_weekday"`
}

// Result is the outcome of a form step. When Errors is non-empty the form
// should be shown again; Entry is nil in that case.
type Result struct {
	Entry  *Entry
	Errors map[string]string
	Err    error
}

func (r Result) OK() bool { return r.Entry != nil && len(r.Errors) == 0 }

type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Updated
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "create"
	case Updated:
		return "update"
	case Removed:
		return "remove"
	default:
		return "unknown"
	}
}

type Change struct {
	Kind    ChangeKind
	Entry   Entry
	ActorID int64
}

// Listener is called after a change has been persisted.
type Listener func(ctx context.Context, c Change)

// Flow validates user input and persists entries.
type Flow struct {
	store    storage.Store
	log      logx.Logger
	validate *validator.Validate

	now   func() time.Time
	newID func() string

	mu        sync.RWMutex
	listeners []Listener
}

func New(store storage.Store, log logx.Logger) *Flow {
	if store == nil {
		store = storage.NewMemory()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Flow{
		store:    store,
		log:      log,
		validate: v,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// OnChange registers a listener (the update listener of the sensor host).
func (f *Flow) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *Flow) notify(ctx context.Context, c Change) {
	f.mu.RLock()
	ls := slices.Clone(f.listeners)
	f.mu.RUnlock()
	for _, fn := range ls {
		fn(ctx, c)
	}
}

// ValidateInput normalizes and validates a create form.
func (f *Flow) ValidateInput(in UserInput) (UserInput, error) {
	in = in.normalized()
	if err := f.validate.Struct(in); err != nil {
		return in, toInputError(err)
	}
	if hasDuplicate(in.NthWeekday) {
		return in, ErrDuplicateNthWeekday
	}
	return in, nil
}

// ValidateOptions normalizes and validates an options form.
func (f *Flow) ValidateOptions(in OptionsInput) (OptionsInput, error) {
	in = in.normalized()
	if err := f.validate.Struct(in); err != nil {
		return in, toInputError(err)
	}
	if hasDuplicate(in.NthWeekday) {
		return in, ErrDuplicateNthWeekday
	}
	return in, nil
}

// Create runs the user step. Invalid input yields a Result with form
// errors and a nil error; the returned error is reserved for storage.
func (f *Flow) Create(ctx context.Context, in UserInput, actorID int64) (Result, error) {
	in, err := f.ValidateInput(in)
	if err != nil {
		return Result{Errors: formErrors(err), Err: err}, nil
	}
	e, err := f.put(ctx, Entry{
		ID:         f.newID(),
		Name:       in.Name,
		Weekdays:   in.Weekdays,
		NthWeekday: in.NthWeekday,
		Source:     SourceUser,
	}, actorID, Created)
	if err != nil {
		return Result{}, err
	}
	return Result{Entry: &e}, nil
}

// Update runs the options step for an existing entry.
func (f *Flow) Update(ctx context.Context, id string, in OptionsInput, actorID int64) (Result, error) {
	cur, err := f.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	in, err = f.ValidateOptions(in)
	if err != nil {
		return Result{Errors: formErrors(err), Err: err}, nil
	}
	cur.Weekdays, cur.NthWeekday = in.Weekdays, in.NthWeekday
	e, err := f.put(ctx, cur, actorID, Updated)
	if err != nil {
		return Result{}, err
	}
	return Result{Entry: &e}, nil
}

func (f *Flow) Remove(ctx context.Context, id string, actorID int64) error {
	cur, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := f.store.DeleteEntry(ctx, cur.ID); err != nil {
		return fmt.Errorf("delete entry %s: %w", cur.ID, err)
	}
	f.audit(ctx, cur, actorID, Removed, "")
	f.notify(ctx, Change{Kind: Removed, Entry: cur, ActorID: actorID})
	return nil
}

// Get returns an entry by ID. A unique ID prefix of at least four
// characters is accepted too.
func (f *Flow) Get(ctx context.Context, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	se, err := f.store.GetEntry(ctx, id)
	if err == nil {
		return fromStorage(se)
	}
	if !errors.Is(err, storage.ErrNotFound) || len(id) < 4 {
		return Entry{}, err
	}
	all, lerr := f.List(ctx)
	if lerr != nil {
		return Entry{}, lerr
	}
	var found []Entry
	for _, e := range all {
		if strings.HasPrefix(e.ID, id) {
			found = append(found, e)
		}
	}
	if len(found) != 1 {
		return Entry{}, err
	}
	return found[0], nil
}

func (f *Flow) List(ctx context.Context) ([]Entry, error) {
	ses, err := f.store.ListEntries(ctx, Domain)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ses))
	for _, se := range ses {
		e, err := fromStorage(se)
		if err != nil {
			f.log.Warn("skipping unreadable entry", logx.String("id", se.ID), logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Import syncs entries declared in the config file. Entries are matched by
// name: new names are created, changed ones updated, and previously
// imported entries no longer declared are removed. Invalid declarations
// are skipped and reported in the joined error.
func (f *Flow) Import(ctx context.Context, decl []UserInput) ([]Change, error) {
	existing, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := map[string]Entry{}
	for _, e := range existing {
		if e.Source == SourceImport {
			byName[e.Name] = e
		}
	}

	var (
		changes []Change
		errs    []error
		seen    = map[string]struct{}{}
	)
	for i, raw := range decl {
		if strings.TrimSpace(raw.Name) == "" {
			raw.Name = fmt.Sprintf("%s %d", DefaultName, i+1)
		}
		in, verr := f.ValidateInput(raw)
		if verr != nil {
			errs = append(errs, fmt.Errorf("entries[%d] %q: %w", i, raw.Name, verr))
			continue
		}
		if _, dup := seen[in.Name]; dup {
			errs = append(errs, fmt.Errorf("entries[%d] %q: duplicate name", i, in.Name))
			continue
		}
		seen[in.Name] = struct{}{}

		cur, ok := byName[in.Name]
		switch {
		case !ok:
			e, err := f.put(ctx, Entry{
				ID:         f.newID(),
				Name:       in.Name,
				Weekdays:   in.Weekdays,
				NthWeekday: in.NthWeekday,
				Source:     SourceImport,
			}, 0, Created)
			if err != nil {
				return changes, err
			}
			changes = append(changes, Change{Kind: Created, Entry: e})
		case !slices.Equal(cur.Weekdays, in.Weekdays) || !slices.Equal(cur.NthWeekday, in.NthWeekday):
			cur.Weekdays, cur.NthWeekday = in.Weekdays, in.NthWeekday
			e, err := f.put(ctx, cur, 0, Updated)
			if err != nil {
				return changes, err
			}
			changes = append(changes, Change{Kind: Updated, Entry: e})
		}
	}

	for name, e := range byName {
		if _, ok := seen[name]; ok {
			continue
		}
		if err := f.Remove(ctx, e.ID, 0); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return changes, err
		}
		changes = append(changes, Change{Kind: Removed, Entry: e})
	}
	return changes, errors.Join(errs...)
}

func (f *Flow) put(ctx context.Context, e Entry, actorID int64, kind ChangeKind) (Entry, error) {
	now := f.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	data, err := json.Marshal(entryData{Weekdays: e.Weekdays, NthWeekday: e.NthWeekday})
	if err != nil {
		return Entry{}, err
	}
	if err := f.store.PutEntry(ctx, storage.Entry{
		ID:        e.ID,
		Domain:    Domain,
		Title:     e.Name,
		Source:    e.Source,
		Data:      data,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}); err != nil {
		return Entry{}, fmt.Errorf("put entry %s: %w", e.ID, err)
	}
	f.audit(ctx, e, actorID, kind, string(data))
	f.notify(ctx, Change{Kind: kind, Entry: e, ActorID: actorID})
	return e, nil
}

func (f *Flow) audit(ctx context.Context, e Entry, actorID int64, kind ChangeKind, detail string) {
	err := f.store.AppendAudit(ctx, storage.AuditEntry{
		At:      f.now(),
		ActorID: actorID,
		Domain:  Domain,
		EntryID: e.ID,
		Action:  kind.String(),
		Detail:  detail,
	})
	if err != nil {
		f.log.Warn("audit append failed", logx.String("id", e.ID), logx.Err(err))
	}
}

func fromStorage(se storage.Entry) (Entry, error) {
	var d entryData
	if len(se.Data) > 0 {
		if err := json.Unmarshal(se.Data, &d); err != nil {
			return Entry{}, fmt.Errorf("decode entry %s: %w", se.ID, err)
		}
	}
	return Entry{
		ID:         se.ID,
		Name:       se.Title,
		Weekdays:   d.Weekdays,
		NthWeekday: d.NthWeekday,
		Source:     se.Source,
		CreatedAt:  se.CreatedAt,
		UpdatedAt:  se.UpdatedAt,
	}, nil
}
