package costs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Entry is the compute-unit cost of one token program instruction under the
// legacy SPL Token implementation and under p-token.
type Entry struct {
	LegacyCU    uint64 `json:"legacy_cu"`
	OptimizedCU uint64 `json:"optimized_cu"`
	Supported   bool   `json:"supported"`
}

// Table maps exact, case-sensitive instruction names (as they appear in
// "Program log: Instruction: <Name>" lines) to their costs.
// A Table is read-only once built; callers share it freely.
type Table map[string]Entry

// GenericInstruction is the representative instruction used when a token
// program transaction carries no parseable instruction logs.
const GenericInstruction = "Transfer"

var defaultTable = Table{
	"InitializeMint":           {LegacyCU: 2967, OptimizedCU: 100, Supported: true},
	"InitializeAccount":        {LegacyCU: 4527, OptimizedCU: 185, Supported: true},
	"InitializeMultisig":       {LegacyCU: 2973, OptimizedCU: 204, Supported: true},
	"Transfer":                 {LegacyCU: 4645, OptimizedCU: 155, Supported: true},
	"Approve":                  {LegacyCU: 2904, OptimizedCU: 122, Supported: true},
	"Revoke":                   {LegacyCU: 2677, OptimizedCU: 97, Supported: true},
	"SetAuthority":             {LegacyCU: 3167, OptimizedCU: 127, Supported: true},
	"MintTo":                   {LegacyCU: 4538, OptimizedCU: 155, Supported: true},
	"Burn":                     {LegacyCU: 4753, OptimizedCU: 168, Supported: true},
	"CloseAccount":             {LegacyCU: 2916, OptimizedCU: 154, Supported: true},
	"FreezeAccount":            {LegacyCU: 4265, OptimizedCU: 136, Supported: true},
	"ThawAccount":              {LegacyCU: 4267, OptimizedCU: 136, Supported: true},
	"TransferChecked":          {LegacyCU: 6201, OptimizedCU: 204, Supported: true},
	"ApproveChecked":           {LegacyCU: 4459, OptimizedCU: 162, Supported: true},
	"MintToChecked":            {LegacyCU: 4546, OptimizedCU: 164, Supported: true},
	"BurnChecked":              {LegacyCU: 4755, OptimizedCU: 169, Supported: true},
	"InitializeAccount2":       {LegacyCU: 4388, OptimizedCU: 164, Supported: true},
	"SyncNative":               {LegacyCU: 0, OptimizedCU: 0, Supported: true},
	"InitializeAccount3":       {LegacyCU: 4240, OptimizedCU: 272, Supported: true},
	"InitializeMultisig2":      {LegacyCU: 2826, OptimizedCU: 319, Supported: true},
	"InitializeMint2":          {LegacyCU: 2827, OptimizedCU: 234, Supported: true},
	"GetAccountDataSize":       {LegacyCU: 0, OptimizedCU: 0, Supported: true},
	"InitializeImmutableOwner": {LegacyCU: 0, OptimizedCU: 0, Supported: true},
	"AmountToUiAmount":         {LegacyCU: 2501, OptimizedCU: 503, Supported: true},
	"UiAmountToAmount":         {LegacyCU: 3161, OptimizedCU: 875, Supported: true},
}

// Default returns a copy of the built-in cost table.
func Default() Table {
	t := make(Table, len(defaultTable))
	for name, e := range defaultTable {
		t[name] = e
	}
	return t
}

// Lookup returns the entry for name, if present.
func (t Table) Lookup(name string) (Entry, bool) {
	e, ok := t[name]
	return e, ok
}

// Attributable reports whether occurrences of name should be counted.
// Entries flagged unsupported are present but never attributed.
func (t Table) Attributable(name string) bool {
	e, ok := t[name]
	return ok && e.Supported
}

// Names returns the instruction names in lexical order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports supported entries whose optimized cost exceeds the legacy
// cost. Such entries would produce negative savings.
func (t Table) Validate() error {
	var errs []error
	for _, name := range t.Names() {
		e := t[name]
		if e.Supported && e.OptimizedCU > e.LegacyCU {
			errs = append(errs, fmt.Errorf("%s: optimized_cu %d exceeds legacy_cu %d", name, e.OptimizedCU, e.LegacyCU))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cost table validation failed: %v", errs)
	}
	return nil
}

// Load decodes a JSON object of name -> entry.
func Load(r io.Reader) (Table, error) {
	var t Table
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode cost table: %w", err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("cost table is empty")
	}
	return t, nil
}

// LoadFile reads a cost table from a JSON file.
// An empty path yields the default table.
func LoadFile(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cost table %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}
