// Package store persists tree tensor networks as sqlite databases at <dir>/<hamiltonian>/<name>.db.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fumin/ttn"
	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/lattice"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableMeta      = "meta"
	tableNodes     = "nodes"
	tableTerms     = "terms"
	tableOperators = "operators"
	tableBonds     = "bonds"
	tableEnergies  = "energies"
	tableTimes     = "times"

	ext = ".db"
)

var (
	// ErrFileNotFound is returned when the folder of a Hamiltonian does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrNetworkNotFound is returned when the folder exists but holds no network of the requested name.
	ErrNetworkNotFound = errors.New("network not found")
)

// Path returns the database path of a network.
func Path(dir, hamiltonian, name string) string {
	return filepath.Join(dir, hamiltonian, name+ext)
}

// Save writes t, overwriting any network of the same name.
// A tree without a name is given a random one.
func Save(ctx context.Context, dir, hamiltonian string, t *ttn.Tree) (string, error) {
	if t.Name == "" {
		t.Name = uuid.NewString()
	}
	if err := os.MkdirAll(filepath.Join(dir, hamiltonian), 0755); err != nil {
		return "", errors.Wrap(err, "")
	}
	dbPath := Path(dir, hamiltonian, t.Name)
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "")
	}

	db, err := newDB(dbPath)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if err := save(ctx, tx, t); err != nil {
		tx.Rollback()
		return "", errors.Wrap(err, dbPath)
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "")
	}
	return dbPath, nil
}

func save(ctx context.Context, tx *sql.Tx, t *ttn.Tree) error {
	b := t.Backend
	meta := map[string]string{
		"name":              t.Name,
		"backend":           b.Name(),
		"root":              strconv.Itoa(int(t.Root)),
		"cut":               strconv.Itoa(t.Cut),
		"phys_dim":          strconv.Itoa(t.PhysDim),
		"current_iteration": strconv.Itoa(t.CurrentIteration),
	}
	for k, v := range meta {
		if err := exec(ctx, tx, fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?)`, tableMeta), k, v); err != nil {
			return errors.Wrap(err, "")
		}
	}

	for _, n := range t.Nodes {
		sqlStr := fmt.Sprintf(`INSERT INTO %s (id, layer, lattice, parent, left_child, right_child, shape, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, tableNodes)
		args := []any{int(n.ID), n.Layer, formatInts(n.Lattice), int(n.Parent), int(n.Left), int(n.Right), formatInts(n.Tensor.Shape()), encodeFloats(b.Data(n.Tensor))}
		if err := exec(ctx, tx, sqlStr, args...); err != nil {
			return errors.Wrap(err, "")
		}
	}

	for i, term := range t.Hamiltonian {
		sqlStr := fmt.Sprintf(`INSERT INTO %s (idx, class, c0, c1) VALUES (?, ?, ?, ?)`, tableTerms)
		if err := exec(ctx, tx, sqlStr, i, int(term.Class), term.Coefficients[0], term.Coefficients[1]); err != nil {
			return errors.Wrap(err, "")
		}
		for j, op := range term.Operators {
			sqlStr := fmt.Sprintf(`INSERT INTO %s (term, pos, shape, data) VALUES (?, ?, ?, ?)`, tableOperators)
			if err := exec(ctx, tx, sqlStr, i, j, formatInts(op.Shape()), encodeFloats(b.Data(op))); err != nil {
				return errors.Wrap(err, "")
			}
		}
	}

	for i, bond := range t.Bonds {
		sqlStr := fmt.Sprintf(`INSERT INTO %s (idx, sites, class, orientation) VALUES (?, ?, ?, ?)`, tableBonds)
		if err := exec(ctx, tx, sqlStr, i, formatInts(bond.Sites), int(bond.Class), int(bond.Orientation)); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for i, e := range t.EnergyPerSweep {
		if err := exec(ctx, tx, fmt.Sprintf(`INSERT INTO %s (idx, energy) VALUES (?, ?)`, tableEnergies), i, e); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for i, d := range t.OptimizeTimes {
		if err := exec(ctx, tx, fmt.Sprintf(`INSERT INTO %s (idx, nanos) VALUES (?, ?)`, tableTimes), i, d.Nanoseconds()); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// Load reads a network onto b and prepares it for optimization, planning contractions with options.
func Load(ctx context.Context, dir, hamiltonian, name string, b backend.Backend, options ...ttn.PlanOptions) (*ttn.Tree, error) {
	folder := filepath.Join(dir, hamiltonian)
	if _, err := os.Stat(folder); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, folder)
		}
		return nil, errors.Wrap(err, "")
	}
	dbPath := Path(dir, hamiltonian, name)
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNetworkNotFound, dbPath)
		}
		return nil, errors.Wrap(err, "")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer db.Close()

	t, err := load(ctx, db, b, options)
	if err != nil {
		return nil, errors.Wrap(err, dbPath)
	}
	return t, nil
}

func load(ctx context.Context, db *sql.DB, b backend.Backend, options []ttn.PlanOptions) (*ttn.Tree, error) {
	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	nodes, err := readNodes(ctx, db, b)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	t, err := ttn.NewTree(b, nodes, ttn.NodeID(meta["root"]), meta["cut"])
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	t.PhysDim = meta["phys_dim"]
	t.CurrentIteration = meta["current_iteration"]
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT v FROM %s WHERE k='name'`, tableMeta)).Scan(&t.Name); err != nil {
		return nil, errors.Wrap(err, "")
	}

	terms, err := readTerms(ctx, db, b)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	bonds, err := readBonds(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if t.EnergyPerSweep, err = readFloats(ctx, db, fmt.Sprintf(`SELECT energy FROM %s ORDER BY idx`, tableEnergies)); err != nil {
		return nil, errors.Wrap(err, "")
	}
	nanos, err := readFloats(ctx, db, fmt.Sprintf(`SELECT nanos FROM %s ORDER BY idx`, tableTimes))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for _, n := range nanos {
		t.OptimizeTimes = append(t.OptimizeTimes, time.Duration(n))
	}

	if len(terms) > 0 {
		if err := t.Setup(terms, bonds, options...); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return t, nil
}

// List returns the names of the networks stored for a Hamiltonian.
func List(dir, hamiltonian string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, hamiltonian))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, hamiltonian)
		}
		return nil, errors.Wrap(err, "")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ext); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]int, error) {
	meta := make(map[string]int)
	for _, k := range []string{"root", "cut", "phys_dim", "current_iteration"} {
		var v string
		sqlStr := fmt.Sprintf(`SELECT v FROM %s WHERE k=?`, tableMeta)
		if err := db.QueryRowContext(ctx, sqlStr, k).Scan(&v); err != nil {
			return nil, errors.Wrap(err, k)
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s %q", k, v))
		}
		meta[k] = i
	}
	return meta, nil
}

func readNodes(ctx context.Context, db *sql.DB, b backend.Backend) ([]*ttn.Node, error) {
	sqlStr := fmt.Sprintf(`SELECT id, layer, lattice, parent, left_child, right_child, shape, data FROM %s ORDER BY id`, tableNodes)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	nodes := make([]*ttn.Node, 0)
	for rows.Next() {
		var id, parent, left, right int
		var latticeStr, shapeStr string
		var data []byte
		n := &ttn.Node{}
		if err := rows.Scan(&id, &n.Layer, &latticeStr, &parent, &left, &right, &shapeStr, &data); err != nil {
			return nil, errors.Wrap(err, "")
		}
		n.ID, n.Parent, n.Left, n.Right = ttn.NodeID(id), ttn.NodeID(parent), ttn.NodeID(left), ttn.NodeID(right)
		if n.Lattice, err = parseInts(latticeStr); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", id))
		}
		if n.Tensor, err = decodeTensor(b, shapeStr, data); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", id))
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return nodes, nil
}

func readTerms(ctx context.Context, db *sql.DB, b backend.Backend) ([]ttn.Term, error) {
	sqlStr := fmt.Sprintf(`SELECT idx, class, c0, c1 FROM %s ORDER BY idx`, tableTerms)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()
	terms := make([]ttn.Term, 0)
	for rows.Next() {
		var idx, class int
		var term ttn.Term
		if err := rows.Scan(&idx, &class, &term.Coefficients[0], &term.Coefficients[1]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		term.Class = lattice.Class(class)
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`SELECT term, shape, data FROM %s ORDER BY term, pos`, tableOperators)
	opRows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer opRows.Close()
	for opRows.Next() {
		var term int
		var shapeStr string
		var data []byte
		if err := opRows.Scan(&term, &shapeStr, &data); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if term < 0 || term >= len(terms) {
			return nil, errors.Errorf("operator of term %d", term)
		}
		op, err := decodeTensor(b, shapeStr, data)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", term))
		}
		terms[term].Operators = append(terms[term].Operators, op)
	}
	if err := opRows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return terms, nil
}

func readBonds(ctx context.Context, db *sql.DB) ([]lattice.Bond, error) {
	sqlStr := fmt.Sprintf(`SELECT sites, class, orientation FROM %s ORDER BY idx`, tableBonds)
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()
	bonds := make([]lattice.Bond, 0)
	for rows.Next() {
		var sitesStr string
		var class, orientation int
		if err := rows.Scan(&sitesStr, &class, &orientation); err != nil {
			return nil, errors.Wrap(err, "")
		}
		sites, err := parseInts(sitesStr)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		bonds = append(bonds, lattice.Bond{Sites: sites, Class: lattice.Class(class), Orientation: lattice.Orientation(orientation)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return bonds, nil
}

func readFloats(ctx context.Context, db *sql.DB, sqlStr string) ([]float64, error) {
	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()
	xs := make([]float64, 0)
	for rows.Next() {
		var x float64
		if err := rows.Scan(&x); err != nil {
			return nil, errors.Wrap(err, "")
		}
		xs = append(xs, x)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return xs, nil
}

func exec(ctx context.Context, tx *sql.Tx, sqlStr string, args ...any) error {
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	schemas := []string{
		fmt.Sprintf(`CREATE TABLE %s (k TEXT PRIMARY KEY, v TEXT) STRICT`, tableMeta),
		fmt.Sprintf(`CREATE TABLE %s (id INTEGER PRIMARY KEY, layer INTEGER, lattice TEXT, parent INTEGER, left_child INTEGER, right_child INTEGER, shape TEXT, data BLOB) STRICT`, tableNodes),
		fmt.Sprintf(`CREATE TABLE %s (idx INTEGER PRIMARY KEY, class INTEGER, c0 REAL, c1 REAL) STRICT`, tableTerms),
		fmt.Sprintf(`CREATE TABLE %s (term INTEGER, pos INTEGER, shape TEXT, data BLOB, PRIMARY KEY (term, pos)) STRICT`, tableOperators),
		fmt.Sprintf(`CREATE TABLE %s (idx INTEGER PRIMARY KEY, sites TEXT, class INTEGER, orientation INTEGER) STRICT`, tableBonds),
		fmt.Sprintf(`CREATE TABLE %s (idx INTEGER PRIMARY KEY, energy REAL) STRICT`, tableEnergies),
		fmt.Sprintf(`CREATE TABLE %s (idx INTEGER PRIMARY KEY, nanos INTEGER) STRICT`, tableTimes),
	}
	for _, sqlStr := range schemas {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

func formatInts(xs []int) string {
	ss := make([]string, 0, len(xs))
	for _, x := range xs {
		ss = append(ss, strconv.Itoa(x))
	}
	return strings.Join(ss, ",")
}

func parseInts(s string) ([]int, error) {
	xs := make([]int, 0)
	if s == "" {
		return xs, nil
	}
	for _, f := range strings.Split(s, ",") {
		x, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%q", s))
		}
		xs = append(xs, x)
	}
	return xs, nil
}

func encodeFloats(xs []float64) []byte {
	buf := make([]byte, 0, 8*len(xs))
	for _, x := range xs {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	}
	return buf
}

func decodeTensor(b backend.Backend, shapeStr string, data []byte) (backend.Tensor, error) {
	shape, err := parseInts(shapeStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(data)%8 != 0 {
		return nil, errors.Errorf("%d bytes", len(data))
	}
	xs := make([]float64, 0, len(data)/8)
	for i := 0; i < len(data); i += 8 {
		xs = append(xs, math.Float64frombits(binary.LittleEndian.Uint64(data[i:])))
	}
	t, err := b.FromSlice(xs, shape...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return t, nil
}
