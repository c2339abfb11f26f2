package classify

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"go.uber.org/zap"

	"github.com/yanet-platform/yatable/tables"
)

// Rule looks a packet field up in a table.
type Rule struct {
	Table tables.Selector
	Field Field
}

// Match is the first rule a packet matched.
type Match struct {
	// Rule is the index of the matched rule.
	Rule int
	// Table is the kidx of the table the rule references.
	Table tables.TableID
	Value tables.Value
}

type options struct {
	Log    *zap.SugaredLogger
	Ifaces IfaceResolver
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// ClassifierOption is a function that configures the Classifier.
type ClassifierOption func(*options)

// WithLog sets the logger for the Classifier.
func WithLog(log *zap.SugaredLogger) ClassifierOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithIfaces sets the interface name resolver used by FieldInIface rules.
func WithIfaces(ifaces IfaceResolver) ClassifierOption {
	return func(o *options) {
		o.Ifaces = ifaces
	}
}

type compiledRule struct {
	ref   *tables.TableRef
	field Field
}

// Classifier evaluates an ordered rule list against packets.
//
// It pins every referenced table for its whole lifetime, so the tables
// cannot be destroyed until Close is called. Table contents may change
// freely; Classify only performs lock-free lookups.
type Classifier struct {
	rules  []compiledRule
	ifaces IfaceResolver
	log    *zap.SugaredLogger
}

// New compiles the rules against the registry.
func New(registry *tables.Registry, rules []Rule, options ...ClassifierOption) (*Classifier, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	m := &Classifier{
		rules:  make([]compiledRule, 0, len(rules)),
		ifaces: opts.Ifaces,
		log:    opts.Log,
	}

	for idx, rule := range rules {
		ref, err := m.compile(registry, rule)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to compile rule #%d: %w", idx, err)
		}

		m.rules = append(m.rules, compiledRule{ref: ref, field: rule.Field})
	}

	return m, nil
}

func (m *Classifier) compile(registry *tables.Registry, rule Rule) (*tables.TableRef, error) {
	typ := rule.Field.KeyType()
	if typ == tables.KeyTypeInvalid {
		return nil, fmt.Errorf("%w: unknown field %s", tables.ErrInvalidArgument, rule.Field)
	}

	ref, err := registry.Acquire(rule.Table)
	if err != nil {
		return nil, err
	}

	// Only tables of the same type can be swapped, so the type is stable
	// while the reference is held.
	summary, err := registry.Info(tables.ByID(ref.ID()))
	if err != nil {
		ref.Release()
		return nil, err
	}
	if summary.Type != typ {
		ref.Release()
		return nil, fmt.Errorf("%w: field %s needs %s table, %q is %s",
			tables.ErrTypeMismatch, rule.Field, typ, summary.Name, summary.Type)
	}
	if rule.Field == FieldInIface && m.ifaces == nil {
		ref.Release()
		return nil, fmt.Errorf("%w: field %s needs an interface resolver", tables.ErrInvalidArgument, rule.Field)
	}

	m.log.Debugw("compiled rule",
		zap.Stringer("table", rule.Table),
		zap.Stringer("kidx", ref.ID()),
		zap.Stringer("field", rule.Field),
	)

	return ref, nil
}

// Classify returns the first rule the packet matches.
func (m *Classifier) Classify(pkt gopacket.Packet) (Match, bool, error) {
	fields, err := Extract(pkt)
	if err != nil {
		return Match{}, false, err
	}

	match, ok := m.ClassifyFields(&fields)
	return match, ok, nil
}

// ClassifyFields returns the first rule the decoded fields match.
func (m *Classifier) ClassifyFields(fields *Fields) (Match, bool) {
	for idx, rule := range m.rules {
		key, ok := fields.Key(rule.field, m.ifaces)
		if !ok {
			continue
		}

		if value, ok := rule.ref.Lookup(key); ok {
			return Match{Rule: idx, Table: rule.ref.ID(), Value: value}, true
		}
	}

	return Match{}, false
}

// Close releases the table references.
func (m *Classifier) Close() {
	for _, rule := range m.rules {
		rule.ref.Release()
	}
}
