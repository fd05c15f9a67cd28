package types

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Keys of the research_dataset document the engine reads or writes.
const (
	KeyPreferredIdentifier = "preferred_identifier"
	KeyFiles               = "files"
	KeyDirectories         = "directories"
	KeyOtherIdentifier     = "other_identifier"
)

// ResearchDataset is the descriptive metadata document of a dataset version.
// Only the fields the versioning rules depend on are typed; everything else
// (title, description, creator, ...) is carried verbatim in Rest.
type ResearchDataset struct {
	PreferredIdentifier string
	Files               []DatasetFile
	Directories         []DatasetDirectory
	OtherIdentifiers    []OtherIdentifier
	Rest                map[string]json.RawMessage
}

// DatasetFile is one entry of research_dataset.files
type DatasetFile struct {
	Identifier string
	raw        json.RawMessage
}

// DatasetDirectory is one entry of research_dataset.directories
type DatasetDirectory struct {
	Identifier string
	raw        json.RawMessage
}

// OtherIdentifier is one entry of research_dataset.other_identifier
type OtherIdentifier struct {
	LocalIdentifier string
	raw             json.RawMessage
}

func (f DatasetFile) MarshalJSON() ([]byte, error) {
	return encodeEntry(f.raw, "identifier", f.Identifier)
}

func (f *DatasetFile) UnmarshalJSON(data []byte) error {
	id, raw, err := decodeEntry(data, "identifier")
	if err != nil {
		return err
	}
	f.Identifier, f.raw = id, raw
	return nil
}

func (d DatasetDirectory) MarshalJSON() ([]byte, error) {
	return encodeEntry(d.raw, "identifier", d.Identifier)
}

func (d *DatasetDirectory) UnmarshalJSON(data []byte) error {
	id, raw, err := decodeEntry(data, "identifier")
	if err != nil {
		return err
	}
	d.Identifier, d.raw = id, raw
	return nil
}

func (o OtherIdentifier) MarshalJSON() ([]byte, error) {
	return encodeEntry(o.raw, "local_identifier", o.LocalIdentifier)
}

func (o *OtherIdentifier) UnmarshalJSON(data []byte) error {
	v, raw, err := decodeEntry(data, "local_identifier")
	if err != nil {
		return err
	}
	o.LocalIdentifier, o.raw = v, raw
	return nil
}

// decodeEntry reads key out of a JSON object, keeping the whole object
func decodeEntry(data []byte, key string) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	var v string
	if r, ok := m[key]; ok {
		if err := json.Unmarshal(r, &v); err != nil {
			return "", nil, err
		}
	}
	return v, append(json.RawMessage(nil), data...), nil
}

// encodeEntry writes the object back with key set to value
func encodeEntry(raw json.RawMessage, key, value string) ([]byte, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	if value == "" {
		delete(m, key)
	} else {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		m[key] = b
	}
	return json.Marshal(m)
}

// MarshalJSON merges the typed fields back into the opaque document
func (rd ResearchDataset) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(rd.Rest)+4)
	for k, v := range rd.Rest {
		m[k] = v
	}
	if rd.PreferredIdentifier != "" {
		m[KeyPreferredIdentifier] = rd.PreferredIdentifier
	}
	if len(rd.Files) > 0 {
		m[KeyFiles] = rd.Files
	}
	if len(rd.Directories) > 0 {
		m[KeyDirectories] = rd.Directories
	}
	if len(rd.OtherIdentifiers) > 0 {
		m[KeyOtherIdentifier] = rd.OtherIdentifiers
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the document into typed fields and Rest
func (rd *ResearchDataset) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	out := ResearchDataset{}
	if v, ok := m[KeyPreferredIdentifier]; ok {
		if err := json.Unmarshal(v, &out.PreferredIdentifier); err != nil {
			return err
		}
		delete(m, KeyPreferredIdentifier)
	}
	if v, ok := m[KeyFiles]; ok {
		if err := json.Unmarshal(v, &out.Files); err != nil {
			return err
		}
		delete(m, KeyFiles)
	}
	if v, ok := m[KeyDirectories]; ok {
		if err := json.Unmarshal(v, &out.Directories); err != nil {
			return err
		}
		delete(m, KeyDirectories)
	}
	if v, ok := m[KeyOtherIdentifier]; ok {
		if err := json.Unmarshal(v, &out.OtherIdentifiers); err != nil {
			return err
		}
		delete(m, KeyOtherIdentifier)
	}
	if len(m) > 0 {
		out.Rest = m
	}

	*rd = out
	return nil
}

// Clone returns a deep copy
func (rd ResearchDataset) Clone() ResearchDataset {
	out := ResearchDataset{PreferredIdentifier: rd.PreferredIdentifier}
	if rd.Files != nil {
		out.Files = make([]DatasetFile, len(rd.Files))
		for i, f := range rd.Files {
			out.Files[i] = DatasetFile{Identifier: f.Identifier, raw: cloneRaw(f.raw)}
		}
	}
	if rd.Directories != nil {
		out.Directories = make([]DatasetDirectory, len(rd.Directories))
		for i, d := range rd.Directories {
			out.Directories[i] = DatasetDirectory{Identifier: d.Identifier, raw: cloneRaw(d.raw)}
		}
	}
	if rd.OtherIdentifiers != nil {
		out.OtherIdentifiers = make([]OtherIdentifier, len(rd.OtherIdentifiers))
		for i, o := range rd.OtherIdentifiers {
			out.OtherIdentifiers[i] = OtherIdentifier{LocalIdentifier: o.LocalIdentifier, raw: cloneRaw(o.raw)}
		}
	}
	if rd.Rest != nil {
		out.Rest = make(map[string]json.RawMessage, len(rd.Rest))
		for k, v := range rd.Rest {
			out.Rest[k] = cloneRaw(v)
		}
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

// FileIdentifiers returns the distinct identifiers of research_dataset.files, sorted
func (rd ResearchDataset) FileIdentifiers() []string {
	ids := make([]string, 0, len(rd.Files))
	for _, f := range rd.Files {
		ids = append(ids, f.Identifier)
	}
	return distinctSorted(ids)
}

// DirectoryIdentifiers returns the distinct identifiers of research_dataset.directories, sorted
func (rd ResearchDataset) DirectoryIdentifiers() []string {
	ids := make([]string, 0, len(rd.Directories))
	for _, d := range rd.Directories {
		ids = append(ids, d.Identifier)
	}
	return distinctSorted(ids)
}

// LocalIdentifiers returns the non-empty other_identifier local identifiers
func (rd ResearchDataset) LocalIdentifiers() []string {
	ids := make([]string, 0, len(rd.OtherIdentifiers))
	for _, o := range rd.OtherIdentifiers {
		if o.LocalIdentifier != "" {
			ids = append(ids, o.LocalIdentifier)
		}
	}
	return distinctSorted(ids)
}

// SameFileSet reports whether both documents reference the same files and directories
func (rd ResearchDataset) SameFileSet(other ResearchDataset) bool {
	return equalStrings(rd.FileIdentifiers(), other.FileIdentifiers()) &&
		equalStrings(rd.DirectoryIdentifiers(), other.DirectoryIdentifiers())
}

// SameDescriptiveMetadata compares everything except files, directories and
// the preferred identifier. Key order and whitespace do not matter.
func (rd ResearchDataset) SameDescriptiveMetadata(other ResearchDataset) bool {
	a, errA := rd.descriptive()
	b, errB := other.descriptive()
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func (rd ResearchDataset) descriptive() (interface{}, error) {
	stripped := ResearchDataset{
		OtherIdentifiers: rd.OtherIdentifiers,
		Rest:             rd.Rest,
	}
	b, err := json.Marshal(stripped)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// WithFiles returns a copy with files and directories appended, skipping
// identifiers already present
func (rd ResearchDataset) WithFiles(files []DatasetFile, dirs []DatasetDirectory) ResearchDataset {
	out := rd.Clone()
	seen := make(map[string]struct{}, len(out.Files))
	for _, f := range out.Files {
		seen[f.Identifier] = struct{}{}
	}
	for _, f := range files {
		if _, ok := seen[f.Identifier]; ok {
			continue
		}
		seen[f.Identifier] = struct{}{}
		out.Files = append(out.Files, DatasetFile{Identifier: f.Identifier, raw: cloneRaw(f.raw)})
	}

	seen = make(map[string]struct{}, len(out.Directories))
	for _, d := range out.Directories {
		seen[d.Identifier] = struct{}{}
	}
	for _, d := range dirs {
		if _, ok := seen[d.Identifier]; ok {
			continue
		}
		seen[d.Identifier] = struct{}{}
		out.Directories = append(out.Directories, DatasetDirectory{Identifier: d.Identifier, raw: cloneRaw(d.raw)})
	}
	return out
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
