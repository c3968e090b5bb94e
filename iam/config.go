package iam

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// MatrixConfig is the declarative, on-disk form of a policy matrix. Operators
// edit this (YAML or JSON), the loader turns it into an immutable Matrix, and
// the engine swaps it in atomically.
type MatrixConfig struct {
	Version int            `json:"version" yaml:"version"`
	Grants  []GrantConfig  `json:"grants" yaml:"grants"`
	Fields  []FieldsConfig `json:"fields" yaml:"fields"`
	Engine  EngineConfig   `json:"engine" yaml:"engine"`
}

// GrantConfig is one row of grants: a role's allowed actions on a resource,
// optionally gated by an ownership predicate.
type GrantConfig struct {
	Resource  ResourceType       `json:"resource" yaml:"resource"`
	Role      Role               `json:"role" yaml:"role"`
	Actions   []Action           `json:"actions" yaml:"actions"`
	Predicate OwnershipPredicate `json:"predicate,omitempty" yaml:"predicate,omitempty"`
}

// FieldsConfig is one field allow-list: the fields a role may write on a
// resource in the given mode.
type FieldsConfig struct {
	Resource ResourceType `json:"resource" yaml:"resource"`
	Role     Role         `json:"role" yaml:"role"`
	Mode     WriteMode    `json:"mode" yaml:"mode"`
	Fields   []string     `json:"fields" yaml:"fields"`
}

// EngineConfig carries runtime tunables applied alongside a matrix swap.
type EngineConfig struct {
	DecisionCacheTTL    int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads matrix configuration from various formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*MatrixConfig, error) {
	cfg := &MatrixConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*MatrixConfig, error) {
	cfg := &MatrixConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary wire format.
func (l *ConfigLoader) LoadBinary(data []byte) (*MatrixConfig, error) {
	return decodeBinaryConfig(bytes.NewReader(data))
}

// ToYAML exports the config to YAML.
func (c *MatrixConfig) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports the config to indented JSON.
func (c *MatrixConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToMatrix assembles and validates a Matrix from the declarative form.
func (c *MatrixConfig) ToMatrix() (*Matrix, error) {
	b := NewMatrixBuilder().Version(c.Version)
	for _, g := range c.Grants {
		pred := g.Predicate
		if pred == "" {
			pred = PredicateNone
		}
		b.Grant(g.Role, g.Resource).Actions(g.Actions...).When(pred).Done()
	}
	for _, f := range c.Fields {
		switch f.Mode {
		case WriteCreate:
			b.CreateFields(f.Role, f.Resource, f.Fields...)
		case WriteUpdate:
			b.UpdateFields(f.Role, f.Resource, f.Fields...)
		default:
			return nil, fmt.Errorf("config: unknown write mode %q for %s/%s", f.Mode, f.Resource, f.Role)
		}
	}
	m := b.Build()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ConfigFromMatrix renders a matrix back into its declarative form, grouping
// cells that share (resource, role, predicate) into one grant row. Rows come
// out in the deterministic order Checksum uses.
func ConfigFromMatrix(m *Matrix) *MatrixConfig {
	cfg := &MatrixConfig{Version: m.Version}
	type grantKey struct {
		Resource  ResourceType
		Role      Role
		Predicate OwnershipPredicate
	}
	grouped := make(map[grantKey][]Action)
	for _, rt := range ResourceTypes() {
		for _, role := range Roles() {
			for _, a := range Actions() {
				rule, ok := m.Rule(rt, role, a)
				if !ok || !rule.Allow {
					continue
				}
				k := grantKey{rt, role, rule.Predicate}
				grouped[k] = append(grouped[k], a)
			}
		}
	}
	for _, rt := range ResourceTypes() {
		for _, role := range Roles() {
			for _, pred := range []OwnershipPredicate{
				PredicateNone, PredicateOwnClass, PredicateOwnRecord,
				PredicateIsHOD, PredicateOwnDepartment,
			} {
				actions, ok := grouped[grantKey{rt, role, pred}]
				if !ok {
					continue
				}
				cfg.Grants = append(cfg.Grants, GrantConfig{
					Resource: rt, Role: role, Actions: actions, Predicate: pred,
				})
			}
			if set := m.UpdateFields(rt, role); set != nil {
				cfg.Fields = append(cfg.Fields, FieldsConfig{
					Resource: rt, Role: role, Mode: WriteUpdate, Fields: set.Names(),
				})
			}
			if set := m.CreateFields(rt, role); set != nil {
				cfg.Fields = append(cfg.Fields, FieldsConfig{
					Resource: rt, Role: role, Mode: WriteCreate, Fields: set.Names(),
				})
			}
		}
	}
	return cfg
}

// ApplyConfig applies engine tunables and swaps in the configured matrix.
func (e *Engine) ApplyConfig(cfg *MatrixConfig) error {
	if cfg.Engine.DecisionCacheTTL > 0 {
		e.decisionCacheTTL = time.Duration(cfg.Engine.DecisionCacheTTL) * time.Millisecond
	}
	if cfg.Engine.RistrettoNumCounter > 0 {
		if err := e.ConfigureRistrettoDecisionCache(cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer); err != nil {
			return fmt.Errorf("configure decision cache: %w", err)
		}
	}
	m, err := cfg.ToMatrix()
	if err != nil {
		return err
	}
	return e.SwapMatrix(m)
}

// Binary wire format
const (
	binaryMagic   = 0x5233 // "R3"
	binaryVersion = 1
)

// EncodeBinaryConfig encodes the config to the compact binary format used by
// the bundle distributor.
func EncodeBinaryConfig(cfg *MatrixConfig) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBinaryConfig(cfg *MatrixConfig, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + format_version(2) + matrix_version(4)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, int32(cfg.Version))

	writeSection(buf, 0x01, func(b *bytes.Buffer) { encodeGrants(b, cfg.Grants) })
	writeSection(buf, 0x02, func(b *bytes.Buffer) { encodeFieldRows(b, cfg.Fields) })
	writeSection(buf, 0x03, func(b *bytes.Buffer) { encodeEngineConfig(b, &cfg.Engine) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*MatrixConfig, error) {
	cfg := &MatrixConfig{}

	var magic, ver uint16
	var matrixVer int32
	binary.Read(r, binary.LittleEndian, &magic)
	binary.Read(r, binary.LittleEndian, &ver)
	binary.Read(r, binary.LittleEndian, &matrixVer)

	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported format version: %d", ver)
	}
	cfg.Version = int(matrixVer)

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		binary.Read(r, binary.LittleEndian, &size)
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}

		switch tag {
		case 0x01:
			cfg.Grants = decodeGrants(data)
		case 0x02:
			cfg.Fields = decodeFieldRows(data)
		case 0x03:
			cfg.Engine = decodeEngineConfig(data)
		}
	}

	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	var l uint16
	binary.Read(r, binary.LittleEndian, &l)
	b := make([]byte, l)
	r.Read(b)
	return string(b)
}

func encodeGrants(buf *bytes.Buffer, grants []GrantConfig) {
	binary.Write(buf, binary.LittleEndian, uint16(len(grants)))
	for _, g := range grants {
		writeString(buf, string(g.Resource))
		writeString(buf, string(g.Role))
		writeString(buf, string(g.Predicate))
		binary.Write(buf, binary.LittleEndian, uint16(len(g.Actions)))
		for _, a := range g.Actions {
			writeString(buf, string(a))
		}
	}
}

func decodeGrants(data []byte) []GrantConfig {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	grants := make([]GrantConfig, count)
	for i := range grants {
		grants[i].Resource = ResourceType(readString(r))
		grants[i].Role = Role(readString(r))
		grants[i].Predicate = OwnershipPredicate(readString(r))
		var actCount uint16
		binary.Read(r, binary.LittleEndian, &actCount)
		grants[i].Actions = make([]Action, actCount)
		for j := range grants[i].Actions {
			grants[i].Actions[j] = Action(readString(r))
		}
	}
	return grants
}

func encodeFieldRows(buf *bytes.Buffer, rows []FieldsConfig) {
	binary.Write(buf, binary.LittleEndian, uint16(len(rows)))
	for _, row := range rows {
		writeString(buf, string(row.Resource))
		writeString(buf, string(row.Role))
		writeString(buf, string(row.Mode))
		binary.Write(buf, binary.LittleEndian, uint16(len(row.Fields)))
		for _, f := range row.Fields {
			writeString(buf, f)
		}
	}
}

func decodeFieldRows(data []byte) []FieldsConfig {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	rows := make([]FieldsConfig, count)
	for i := range rows {
		rows[i].Resource = ResourceType(readString(r))
		rows[i].Role = Role(readString(r))
		rows[i].Mode = WriteMode(readString(r))
		var fieldCount uint16
		binary.Read(r, binary.LittleEndian, &fieldCount)
		rows[i].Fields = make([]string, fieldCount)
		for j := range rows[i].Fields {
			rows[i].Fields[j] = readString(r)
		}
	}
	return rows
}

func encodeEngineConfig(buf *bytes.Buffer, cfg *EngineConfig) {
	binary.Write(buf, binary.LittleEndian, cfg.DecisionCacheTTL)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoNumCounter)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoMaxCost)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoBuffer)
}

func decodeEngineConfig(data []byte) EngineConfig {
	r := bytes.NewReader(data)
	cfg := EngineConfig{}
	binary.Read(r, binary.LittleEndian, &cfg.DecisionCacheTTL)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoNumCounter)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoMaxCost)
	binary.Read(r, binary.LittleEndian, &cfg.RistrettoBuffer)
	return cfg
}
