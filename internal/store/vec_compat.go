// vec0 virtual table compatibility layer: a pure-Go, in-memory stand-in for
// the real sqlite-vec extension so the ANN index works with no cgo build.
// Rows are not durable across process restart; Open() repopulates the index
// from the real artifacts table (spec §5 "append-and-read with occasional
// bulk rebuild on reopen").
//
// Rows are partitioned by project up front. That partition lets the hot
// path, FindSimilarRows, walk only a project's own rows when FindSimilar is
// given a projectID (an empty projectID walks every row), with a cached
// vector norm per row instead of asking SQLite to scan and score the
// whole table through the vector_distance_cos scalar function. The scalar
// function stays registered for any ad-hoc SQL against the virtual table,
// but the store itself no longer depends on it for ranking.
package store

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

var vecCompatOnce sync.Once

// registerVecCompat installs the vec0 virtual table module and the
// vector_distance_cos scalar function. Safe to call more than once per
// process; registration happens exactly once.
func registerVecCompat() {
	vecCompatOnce.Do(func() {
		_ = vtab.RegisterModule(nil, "vec0", &vecModule{})
		_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vecDistanceCos)
	})
}

type vecModule struct{}

var (
	vecTablesMu sync.RWMutex
	vecTables   = make(map[string]*vecTable)
)

// vecTable holds one virtual table's rows, indexed three ways: by rowid for
// the vtab Update/Delete contract, by artifact so a re-embedded artifact's
// stale row can be dropped in one lookup, and by project so FindSimilarRows
// never has to touch rows outside the project being queried.
type vecTable struct {
	name string
	mu   sync.RWMutex

	rows       map[int64]vecRow
	byArtifact map[string]int64
	byProject  map[string]map[int64]struct{}

	nextRowID int64
}

type vecRow struct {
	rowid      int64
	embedding  []byte
	norm       float64 // cached L2 norm of the decoded embedding
	artifactID string
	projectID  string
}

func newVecTable(name string) *vecTable {
	return &vecTable{
		name:       name,
		rows:       make(map[int64]vecRow),
		byArtifact: make(map[string]int64),
		byProject:  make(map[string]map[int64]struct{}),
		nextRowID:  1,
	}
}

func (m *vecModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: insufficient args")
	}
	name := args[2]
	if err := ctx.Declare("CREATE TABLE x(embedding BLOB, artifact_id TEXT, project_id TEXT)"); err != nil {
		return nil, err
	}

	vecTablesMu.Lock()
	defer vecTablesMu.Unlock()
	tbl, ok := vecTables[name]
	if !ok {
		tbl = newVecTable(name)
		vecTables[name] = tbl
	}
	return tbl, nil
}

func (t *vecTable) BestIndex(info *vtab.IndexInfo) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info.EstimatedRows = int64(len(t.rows))
	return nil
}

func (t *vecTable) Open() (vtab.Cursor, error) { return &vecCursor{tbl: t, idx: -1}, nil }
func (t *vecTable) Disconnect() error          { return nil }
func (t *vecTable) Destroy() error             { return nil }

func (t *vecTable) Insert(cols []vtab.Value, rowid *int64) error {
	if len(cols) < 3 {
		return fmt.Errorf("vec0: insert expects 3 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	artifactID := toString(cols[1])
	projectID := toString(cols[2])

	t.mu.Lock()
	defer t.mu.Unlock()
	rid := *rowid
	if rid <= 0 {
		rid = t.nextRowID
		t.nextRowID++
	}
	t.putLocked(vecRow{rowid: rid, embedding: emb, norm: vectorNorm(emb), artifactID: artifactID, projectID: projectID})
	*rowid = rid
	return nil
}

func (t *vecTable) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	if len(cols) < 3 {
		return fmt.Errorf("vec0: update expects 3 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	artifactID := toString(cols[1])
	projectID := toString(cols[2])

	t.mu.Lock()
	defer t.mu.Unlock()
	target := oldRowid
	if newRowid != nil && *newRowid > 0 {
		target = *newRowid
	}
	if target != oldRowid {
		t.removeLocked(oldRowid)
	}
	t.putLocked(vecRow{rowid: target, embedding: emb, norm: vectorNorm(emb), artifactID: artifactID, projectID: projectID})
	if target >= t.nextRowID {
		t.nextRowID = target + 1
	}
	return nil
}

func (t *vecTable) Delete(oldRowid int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(oldRowid)
	return nil
}

// putLocked inserts or replaces row, keeping the artifact and project
// indices in sync. Caller holds t.mu.
func (t *vecTable) putLocked(row vecRow) {
	if old, ok := t.rows[row.rowid]; ok {
		t.unindexLocked(old)
	}
	t.rows[row.rowid] = row
	t.byArtifact[row.artifactID] = row.rowid
	if row.projectID != "" {
		set, ok := t.byProject[row.projectID]
		if !ok {
			set = make(map[int64]struct{})
			t.byProject[row.projectID] = set
		}
		set[row.rowid] = struct{}{}
	}
}

// removeLocked drops rowid from every index. Caller holds t.mu.
func (t *vecTable) removeLocked(rowid int64) {
	row, ok := t.rows[rowid]
	if !ok {
		return
	}
	t.unindexLocked(row)
	delete(t.rows, rowid)
}

func (t *vecTable) unindexLocked(row vecRow) {
	if existing, ok := t.byArtifact[row.artifactID]; ok && existing == row.rowid {
		delete(t.byArtifact, row.artifactID)
	}
	if set, ok := t.byProject[row.projectID]; ok {
		delete(set, row.rowid)
		if len(set) == 0 {
			delete(t.byProject, row.projectID)
		}
	}
}

// deleteByArtifactID removes the row for artifactID, used when an artifact
// is re-embedded or deleted directly rather than through the virtual
// table's rowid.
func (t *vecTable) deleteByArtifactID(artifactID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rowid, ok := t.byArtifact[artifactID]; ok {
		t.removeLocked(rowid)
	}
}

// vecHit is one scored candidate from FindSimilarRows.
type vecHit struct {
	artifactID string
	distance   float64
}

// FindSimilarRows ranks every row for projectID against query by ascending
// cosine distance, applying threshold and limit, entirely in Go against the
// cached index rather than round-tripping through a SQL scan. Row norms are
// cached at write time (see putLocked/vectorNorm), so scoring a query only
// costs the dot product, not a second norm pass over every candidate.
func (t *vecTable) FindSimilarRows(projectID string, query []float32, limit int, threshold *float64) ([]vecHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	qNorm := vectorNormF32(query)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates map[int64]struct{}
	if projectID != "" {
		candidates = t.byProject[projectID]
	} else {
		candidates = make(map[int64]struct{}, len(t.rows))
		for id := range t.rows {
			candidates[id] = struct{}{}
		}
	}

	hits := make([]vecHit, 0, len(candidates))
	for id := range candidates {
		row := t.rows[id]
		vec, err := decodeFloat32(row.embedding)
		if err != nil {
			return nil, err
		}
		dist, ok := cosineDistanceCached(query, qNorm, vec, row.norm)
		if !ok {
			continue
		}
		if threshold != nil && dist >= *threshold {
			continue
		}
		hits = append(hits, vecHit{artifactID: row.artifactID, distance: dist})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type vecCursor struct {
	tbl *vecTable
	ids []int64
	idx int
}

func (c *vecCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.tbl.mu.RLock()
	c.ids = make([]int64, 0, len(c.tbl.rows))
	for id := range c.tbl.rows {
		c.ids = append(c.ids, id)
	}
	c.tbl.mu.RUnlock()
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	c.idx = 0
	return nil
}

func (c *vecCursor) Next() error {
	c.idx++
	return nil
}

func (c *vecCursor) Eof() bool {
	return c.idx >= len(c.ids)
}

func (c *vecCursor) Column(col int) (vtab.Value, error) {
	row, err := c.currentRow()
	if err != nil {
		return nil, err
	}
	switch col {
	case 0:
		return row.embedding, nil
	case 1:
		return row.artifactID, nil
	case 2:
		return row.projectID, nil
	default:
		return nil, fmt.Errorf("vec0: invalid column %d", col)
	}
}

func (c *vecCursor) Rowid() (int64, error) {
	row, err := c.currentRow()
	if err != nil {
		return 0, err
	}
	return row.rowid, nil
}

func (c *vecCursor) currentRow() (vecRow, error) {
	if c.idx < 0 || c.idx >= len(c.ids) {
		return vecRow{}, fmt.Errorf("vec0: cursor out of range")
	}
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	row, ok := c.tbl.rows[c.ids[c.idx]]
	if !ok {
		return vecRow{}, fmt.Errorf("vec0: cursor row vanished")
	}
	return row, nil
}

func (c *vecCursor) Close() error { return nil }

// vectorNorm decodes raw and returns its L2 norm, used to cache vecRow.norm
// at write time.
func vectorNorm(raw []byte) float64 {
	v, err := decodeFloat32(raw)
	if err != nil {
		return 0
	}
	return vectorNormF32(v)
}

func vectorNormF32(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosineDistanceCached computes 1-cosine(a,b) given a's norm and b's
// pre-cached norm, avoiding a second pass over b to recompute it. Returns
// ok=false when either vector is empty or they have mismatched dimensions.
func cosineDistanceCached(a []float32, aNorm float64, b []float32, bNorm float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}
	if aNorm == 0 || bNorm == 0 {
		return 1, true
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(aNorm*bNorm), true
}

// vecDistanceCos is the registered vector_distance_cos SQL scalar function,
// kept for any ad-hoc query issued directly against the virtual table; the
// store's own FindSimilar no longer calls it (see FindSimilarRows).
func vecDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	dist, ok := cosineDistanceCached(a, vectorNormF32(a), b, vectorNormF32(b))
	if !ok {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}
	return dist, nil
}

func decodeFloat32(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector_distance_cos: blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		return decodeFloat32([]byte(x))
	default:
		return nil, fmt.Errorf("vector_distance_cos: unsupported type %T", v)
	}
}

// encodeFloat32 is the inverse of decodeFloat32, used when writing
// embeddings into the artifacts table and the vec0 index.
func encodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func coerceBlob(v vtab.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("vec0: unsupported embedding type %T", v)
	}
}

func toString(v vtab.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
