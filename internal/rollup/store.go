package rollup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// ErrStorageUnavailable wraps every backing-store failure. The accessor
// performs no retries and no caching; callers decide what an unreachable
// store means for them.
var ErrStorageUnavailable = errors.New("rollup store unavailable")

// Store provides typed read access to the precomputed rollup views.
// It never writes aggregate data; the continuous aggregate facility
// owns the views and refreshes them on its own schedule.
type Store struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Store{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (s *Store) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		fmt.Printf("Running migration: %s\n", filename)

		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := s.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// GetBuckets returns the aggregate buckets for one scope entity in
// [start, end), ascending by bucket start. No data is not an error: the
// result is simply empty.
func (s *Store) GetBuckets(ctx context.Context, scope Scope, scopeID string, g Granularity, start, end time.Time) ([]AggregateBucket, error) {
	if g.Scope() != scope {
		return nil, fmt.Errorf("granularity %s does not serve scope %q", g, scope)
	}

	idColumn := "device_id"
	if scope == ScopeHousehold {
		idColumn = "household_id"
	}

	query := fmt.Sprintf(`
		SELECT bucket, energy_wh, power_avg_w, power_max_w
		FROM %s
		WHERE %s = $1 AND bucket >= $2 AND bucket < $3
		ORDER BY bucket ASC
	`, g.Table(), idColumn)

	rows, err := s.QueryContext(ctx, query, scopeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStorageUnavailable, g.Table(), err)
	}
	defer rows.Close()

	var buckets []AggregateBucket
	for rows.Next() {
		b := AggregateBucket{
			Scope:       scope,
			ScopeID:     scopeID,
			BucketWidth: g.Width(),
		}
		if err := rows.Scan(&b.BucketStart, &b.EnergyWh, &b.PowerAvgW, &b.PowerMaxW); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorageUnavailable, g.Table(), err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrStorageUnavailable, g.Table(), err)
	}

	return buckets, nil
}

// HouseholdDeviceBuckets returns the Device1h buckets of every device
// belonging to a household over [start, end), ascending by bucket start.
// This is the ranking read path: one hour-grained scan per household.
func (s *Store) HouseholdDeviceBuckets(ctx context.Context, householdID string, start, end time.Time) ([]AggregateBucket, error) {
	query := `
		SELECT device_id, bucket, energy_wh, power_avg_w, power_max_w
		FROM device_energy_1h
		WHERE household_id = $1 AND bucket >= $2 AND bucket < $3
		ORDER BY bucket ASC, device_id ASC
	`

	rows, err := s.QueryContext(ctx, query, householdID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: query device_energy_1h: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var buckets []AggregateBucket
	for rows.Next() {
		b := AggregateBucket{
			Scope:       ScopeDevice,
			BucketWidth: time.Hour,
		}
		if err := rows.Scan(&b.ScopeID, &b.BucketStart, &b.EnergyWh, &b.PowerAvgW, &b.PowerMaxW); err != nil {
			return nil, fmt.Errorf("%w: scan device_energy_1h: %v", ErrStorageUnavailable, err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate device_energy_1h: %v", ErrStorageUnavailable, err)
	}

	return buckets, nil
}
