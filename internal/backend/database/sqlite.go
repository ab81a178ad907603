package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

// imageColumns lists the selectable image fields in table order.
var imageColumns = []string{
	"id", "workspace_id", "side", "name", "mime_type",
	"original_image", "processed_image", "width", "height", "rank", "created_at",
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: opens its own empty database
	if strings.Contains(connectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			side TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			original_image BLOB,
			processed_image BLOB,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			rank TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_side ON images (workspace_id, side, rank)`,
		`CREATE TABLE IF NOT EXISTS designs (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL,
			left_images TEXT NOT NULL,
			right_images TEXT NOT NULL,
			scenes TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return nil, err
		}
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateWorkspace() (*Workspace, error) {
	ws := &Workspace{ID: generateID(), CreatedAt: time.Now().UTC()}
	_, err := s.db.Exec("INSERT INTO workspaces (id, created_at) VALUES (?, ?)", ws.ID, ws.CreatedAt.UnixNano())
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *SQLiteDatabase) GetWorkspace(id string) (*Workspace, error) {
	var (
		ws      Workspace
		created int64
	)
	err := s.db.QueryRow("SELECT id, created_at FROM workspaces WHERE id = ?", id).Scan(&ws.ID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ws.CreatedAt = time.Unix(0, created).UTC()
	return &ws, nil
}

// CreateImage inserts original and processed bytes in one statement so the
// processed image is never observed as NULL.
func (s *SQLiteDatabase) CreateImage(img *Image) (string, error) {
	if img.WorkspaceID == "" || img.Side == "" {
		return "", fmt.Errorf("image requires workspace and side")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	var last sql.NullString
	err = tx.QueryRow("SELECT MAX(rank) FROM images WHERE workspace_id = ? AND side = ?", img.WorkspaceID, img.Side).Scan(&last)
	if err != nil {
		return "", err
	}

	id := generateID()
	rank := Next(last.String)
	created := time.Now().UTC()
	_, err = tx.Exec(`INSERT INTO images
		(id, workspace_id, side, name, mime_type, original_image, processed_image, width, height, rank, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, img.WorkspaceID, img.Side, img.Name, img.MimeType, img.OriginalImage, img.ProcessedImage,
		img.Width, img.Height, rank, created.UnixNano())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	img.ID = id
	img.Rank = rank
	img.CreatedAt = created
	return id, nil
}

func (s *SQLiteDatabase) GetImages(workspaceID, side string, fields ...string) ([]*Image, error) {
	columns, err := resolveImageColumns(fields)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + strings.Join(columns, ", ") + " FROM images WHERE workspace_id = ?"
	args := []any{workspaceID}
	if side != "" {
		query += " AND side = ?"
		args = append(args, side)
	}
	query += " ORDER BY side, rank"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows, columns)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteDatabase) GetImageByID(id string) (*Image, error) {
	row := s.db.QueryRow("SELECT "+strings.Join(imageColumns, ", ")+" FROM images WHERE id = ?", id)
	img, err := scanImage(row, imageColumns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *SQLiteDatabase) CountImages(workspaceID, side string) (int, error) {
	query := "SELECT COUNT(*) FROM images WHERE workspace_id = ?"
	args := []any{workspaceID}
	if side != "" {
		query += " AND side = ?"
		args = append(args, side)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteDatabase) UpdateRanks(ranks map[string]string) error {
	if len(ranks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	for id, rank := range ranks {
		if _, err := tx.Exec("UPDATE images SET rank = ? WHERE id = ?", rank, id); err != nil {
			return fmt.Errorf("failed to update rank of %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) DeleteImage(id string) error {
	_, err := s.db.Exec("DELETE FROM images WHERE id = ?", id)
	return err
}

func (s *SQLiteDatabase) DeleteImages(workspaceID, side string) (int64, error) {
	query := "DELETE FROM images WHERE workspace_id = ?"
	args := []any{workspaceID}
	if side != "" {
		query += " AND side = ?"
		args = append(args, side)
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteDatabase) CreateDesign(design *Design) (string, error) {
	left, err := json.Marshal(nonNilRefs(design.LeftImages))
	if err != nil {
		return "", err
	}
	right, err := json.Marshal(nonNilRefs(design.RightImages))
	if err != nil {
		return "", err
	}
	scenes := design.Scenes
	if scenes == nil {
		scenes = map[string]json.RawMessage{}
	}
	scenesJSON, err := json.Marshal(scenes)
	if err != nil {
		return "", err
	}

	id := generateID()
	created := time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO designs (id, workspace_id, name, left_images, right_images, scenes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, design.WorkspaceID, design.Name, string(left), string(right), string(scenesJSON), created.UnixNano())
	if err != nil {
		return "", err
	}
	design.ID = id
	design.CreatedAt = created
	return id, nil
}

func (s *SQLiteDatabase) GetDesigns(workspaceID string) ([]*Design, error) {
	rows, err := s.db.Query(`SELECT id, workspace_id, name, left_images, right_images, scenes, created_at
		FROM designs WHERE workspace_id = ? ORDER BY created_at, rowid`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var designs []*Design
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

func (s *SQLiteDatabase) GetDesignByID(id string) (*Design, error) {
	row := s.db.QueryRow(`SELECT id, workspace_id, name, left_images, right_images, scenes, created_at
		FROM designs WHERE id = ?`, id)
	d, err := scanDesign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLiteDatabase) CountDesigns(workspaceID string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM designs WHERE workspace_id = ?", workspaceID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteDatabase) DeleteDesign(id string) error {
	_, err := s.db.Exec("DELETE FROM designs WHERE id = ?", id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func resolveImageColumns(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return imageColumns, nil
	}
	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		known := false
		for _, c := range imageColumns {
			if c == f {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown image field: %s", f)
		}
		columns = append(columns, f)
	}
	return columns, nil
}

func scanImage(row scanner, columns []string) (*Image, error) {
	var (
		img     Image
		created int64
	)
	dest := make([]any, len(columns))
	for i, c := range columns {
		switch c {
		case "id":
			dest[i] = &img.ID
		case "workspace_id":
			dest[i] = &img.WorkspaceID
		case "side":
			dest[i] = &img.Side
		case "name":
			dest[i] = &img.Name
		case "mime_type":
			dest[i] = &img.MimeType
		case "original_image":
			dest[i] = &img.OriginalImage
		case "processed_image":
			dest[i] = &img.ProcessedImage
		case "width":
			dest[i] = &img.Width
		case "height":
			dest[i] = &img.Height
		case "rank":
			dest[i] = &img.Rank
		case "created_at":
			dest[i] = &created
		}
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if created != 0 {
		img.CreatedAt = time.Unix(0, created).UTC()
	}
	return &img, nil
}

func scanDesign(row scanner) (*Design, error) {
	var (
		d                   Design
		left, right, scenes string
		created             int64
	)
	if err := row.Scan(&d.ID, &d.WorkspaceID, &d.Name, &left, &right, &scenes, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(left), &d.LeftImages); err != nil {
		return nil, fmt.Errorf("failed to decode left images of design %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(right), &d.RightImages); err != nil {
		return nil, fmt.Errorf("failed to decode right images of design %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(scenes), &d.Scenes); err != nil {
		return nil, fmt.Errorf("failed to decode scenes of design %s: %w", d.ID, err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	return &d, nil
}

func nonNilRefs(refs []ImageRef) []ImageRef {
	if refs == nil {
		return []ImageRef{}
	}
	return refs
}
