// Package proof builds the ordered proof record written for every media item.
package proof

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Field names of a proof record, in canonical order.
const (
	FieldFilePath                  = "File Path"
	FieldFileHash                  = "File Hash SHA256"
	FieldFileModified              = "File Modified"
	FieldFileCreated               = "File Created"
	FieldProofGenerated            = "Proof Generated"
	FieldLanguage                  = "Language"
	FieldLocale                    = "Locale"
	FieldDeviceID                  = "DeviceID"
	FieldWifiMAC                   = "Wifi MAC"
	FieldIPv4                      = "IPv4"
	FieldIPv6                      = "IPv6"
	FieldDataType                  = "DataType"
	FieldNetwork                   = "Network"
	FieldNetworkType               = "NetworkType"
	FieldHardware                  = "Hardware"
	FieldManufacturer              = "Manufacturer"
	FieldScreenSize                = "ScreenSize"
	FieldLatitude                  = "Location.Latitude"
	FieldLongitude                 = "Location.Longitude"
	FieldLocationProvider          = "Location.Provider"
	FieldAccuracy                  = "Location.Accuracy"
	FieldAltitude                  = "Location.Altitude"
	FieldBearing                   = "Location.Bearing"
	FieldSpeed                     = "Location.Speed"
	FieldLocationTime              = "Location.Time"
	FieldSafetyCheck               = "SafetyCheck"
	FieldSafetyCheckBasicIntegrity = "SafetyCheckBasicIntegrity"
	FieldSafetyCheckCtsMatch       = "SafetyCheckCtsMatch"
	FieldSafetyCheckTimestamp      = "SafetyCheckTimestamp"
	FieldNotes                     = "Notes"
	FieldCellInfo                  = "CellInfo"
)

// FieldNames is the fixed field set of every record.
var FieldNames = []string{
	FieldFilePath,
	FieldFileHash,
	FieldFileModified,
	FieldFileCreated,
	FieldProofGenerated,
	FieldLanguage,
	FieldLocale,
	FieldDeviceID,
	FieldWifiMAC,
	FieldIPv4,
	FieldIPv6,
	FieldDataType,
	FieldNetwork,
	FieldNetworkType,
	FieldHardware,
	FieldManufacturer,
	FieldScreenSize,
	FieldLatitude,
	FieldLongitude,
	FieldLocationProvider,
	FieldAccuracy,
	FieldAltitude,
	FieldBearing,
	FieldSpeed,
	FieldLocationTime,
	FieldSafetyCheck,
	FieldSafetyCheckBasicIntegrity,
	FieldSafetyCheckCtsMatch,
	FieldSafetyCheckTimestamp,
	FieldNotes,
	FieldCellInfo,
}

// TimeLayout formats every timestamp in a record.
const TimeLayout = "2006-01-02T15:04:05Z"

// Field is a single name/value pair.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered set of fields. Serializing the same record always
// yields the same bytes.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord returns a record holding every field in FieldNames, all empty.
func NewRecord() *Record {
	r := &Record{index: make(map[string]int, len(FieldNames))}
	for _, name := range FieldNames {
		r.Set(name, "")
	}
	return r
}

// Set assigns a value, appending the field if it is not yet present.
func (r *Record) Set(name, value string) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Get returns the value of a field.
func (r *Record) Get(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	return r.fields[i].Value, true
}

// Value returns the value of a field, or "" when absent.
func (r *Record) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

// Names returns the field names in order.
func (r *Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// CSV renders the record as one row, preceded by a header row when
// writeHeader is set.
func (r *Record) CSV(writeHeader bool) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if writeHeader {
		if err := w.Write(r.Names()); err != nil {
			return "", err
		}
	}
	values := make([]string, len(r.fields))
	for i, f := range r.fields {
		values[i] = f.Value
	}
	if err := w.Write(values); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarshalJSON writes the fields as a JSON object in record order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("proof record: expected object")
	}

	*r = Record{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("proof record: expected field name")
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		switch v := value.(type) {
		case string:
			r.Set(name, v)
		case nil:
			r.Set(name, "")
		default:
			r.Set(name, fmt.Sprint(v))
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ParseJSON decodes a record written by MarshalJSON.
func ParseJSON(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseCSV decodes the header row and the most recent data row of a proof CSV.
func ParseCSV(data string) (*Record, error) {
	rd := csv.NewReader(strings.NewReader(data))
	rd.FieldsPerRecord = -1

	header, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("proof csv: read header: %w", err)
	}

	var last []string
	for {
		row, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("proof csv: %w", err)
		}
		last = row
	}
	if last == nil {
		return nil, fmt.Errorf("proof csv: no data row")
	}
	if len(last) != len(header) {
		return nil, fmt.Errorf("proof csv: %d values for %d fields", len(last), len(header))
	}

	r := &Record{index: make(map[string]int, len(header))}
	for i, name := range header {
		r.Set(name, last[i])
	}
	return r, nil
}
