package rowsync

import (
	"time"

	"github.com/unkn0wn-root/rowsync/cache"
	"github.com/unkn0wn-root/rowsync/codec"
	"github.com/unkn0wn-root/rowsync/db"
	"github.com/unkn0wn-root/rowsync/event"
)

const defaultCASAttempts = 5

// Options tune a Store. Only DB is required; a nil Cache disables caching
// and the engine runs database-of-record.
type Options struct {
	// Required.
	DB db.Executor

	Cache cache.Client         // nil => caching disabled
	Codec codec.Codec[Payload] // nil => codec.Msgpack[Payload]
	Log   Logger               // nil => NopLogger
	Bus   *event.Bus           // nil => a fresh bus

	// DefaultTTL bounds cached record lifetime; 0 => entries never expire on
	// their own. Types can override per table.
	DefaultTTL time.Duration

	// CASAttempts bounds the update retry loop; 0 => 5.
	CASAttempts int

	// Disabled turns caching off even when Cache is set.
	Disabled bool
}

// Store wires the adapters together and hands out record engines. One Store
// per process is typical; records of any number of types share it.
type Store struct {
	db          db.Executor
	cache       cache.Client
	codec       codec.Codec[Payload]
	log         Logger
	bus         *event.Bus
	meta        *Resolver
	defaultTTL  time.Duration
	casAttempts int
	cacheOn     bool
}

func Open(opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, &ConfigError{Field: "DB", Reason: "executor is required"}
	}

	s := &Store{
		db:         opts.DB,
		cache:      opts.Cache,
		defaultTTL: opts.DefaultTTL,
		cacheOn:    opts.Cache != nil && !opts.Disabled,
	}
	if opts.Codec != nil {
		s.codec = opts.Codec
	} else {
		s.codec = codec.Msgpack[Payload]{}
	}
	s.log = coalesce[Logger](opts.Log, NopLogger{})
	s.bus = opts.Bus
	if s.bus == nil {
		s.bus = event.NewBus()
	}
	s.casAttempts = opts.CASAttempts
	if s.casAttempts <= 0 {
		s.casAttempts = defaultCASAttempts
	}
	var metaCache cache.Client
	if s.cacheOn {
		metaCache = s.cache
	}
	s.meta = newResolver(s.db, metaCache, s.log)
	return s, nil
}

// Bus exposes the event bus for subscribers.
func (s *Store) Bus() *event.Bus { return s.bus }

// Metadata exposes the resolver, mainly so tests can Reset it.
func (s *Store) Metadata() *Resolver { return s.meta }

// CacheEnabled reports whether the store writes through to a cache.
func (s *Store) CacheEnabled() bool { return s.cacheOn }

// Record builds an engine for one logical record of type t identified by
// keys. The type's field events are registered with the bus here, so
// subscribing to an undeclared kind fails at wiring time.
func (s *Store) Record(t *Type, keys KeyValues) (*Record, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if len(t.FieldEvents) > 0 {
		kinds := make([]event.Kind, 0, len(t.FieldEvents))
		for _, k := range t.FieldEvents {
			kinds = append(kinds, k)
		}
		s.bus.Register(kinds...)
	}
	return &Record{store: s, typ: t, keys: keys}, nil
}

// Event is the notification payload delivered through the bus.
type Event struct {
	Table string
	Keys  KeyValues
	// Fields carries the changed fields for updates, the supplied data for
	// inserts, nil for deletes.
	Fields map[string]any
}

func (s *Store) emit(kind event.Kind, table string, keys KeyValues, fields map[string]any) {
	s.bus.Emit(kind, Event{Table: table, Keys: keys, Fields: fields})
}
