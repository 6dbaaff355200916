package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marchaven/roadband/internal/game/party"
	"github.com/marchaven/roadband/internal/game/stats"
)

// ErrPartyNotFound is returned when a party lookup yields no results.
var ErrPartyNotFound = errors.New("party not found")

// ErrPartyNameTaken is returned when creating a party with a name already in use.
var ErrPartyNameTaken = errors.New("party name already taken")

// PartyRecord is the stored roster row. RoadID is empty while the party
// rests off-road.
type PartyRecord struct {
	ID        int64
	Name      string
	RoadID    string
	WaveIndex int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PartyRepository provides party and hero persistence operations. It is
// combat-unaware; the simulation decides when saving is allowed.
type PartyRepository struct {
	db *pgxpool.Pool
}

// NewPartyRepository creates a PartyRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPartyRepository(db *pgxpool.Pool) *PartyRepository {
	return &PartyRepository{db: db}
}

// Create inserts a new party and its hero rows in one transaction.
//
// Precondition: name must be non-empty; states must carry distinct slots.
// Postcondition: Returns the created record, or ErrPartyNameTaken on duplicate.
func (r *PartyRepository) Create(ctx context.Context, name string, states []party.SaveState) (PartyRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return PartyRecord{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var rec PartyRecord
	err = tx.QueryRow(ctx, `
		INSERT INTO parties (name)
		VALUES ($1)
		RETURNING id, name, COALESCE(road_id, ''), wave_index, created_at, updated_at`,
		name,
	).Scan(&rec.ID, &rec.Name, &rec.RoadID, &rec.WaveIndex, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return PartyRecord{}, ErrPartyNameTaken
		}
		return PartyRecord{}, fmt.Errorf("inserting party: %w", err)
	}

	for _, st := range states {
		if err := upsertHero(ctx, tx, rec.ID, st); err != nil {
			return PartyRecord{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PartyRecord{}, fmt.Errorf("committing party: %w", err)
	}
	return rec, nil
}

// GetByName retrieves a party record by its unique name.
//
// Precondition: name must be non-empty.
// Postcondition: Returns the record or ErrPartyNotFound.
func (r *PartyRepository) GetByName(ctx context.Context, name string) (PartyRecord, error) {
	var rec PartyRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(road_id, ''), wave_index, created_at, updated_at
		FROM parties WHERE name = $1`,
		name,
	).Scan(&rec.ID, &rec.Name, &rec.RoadID, &rec.WaveIndex, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartyRecord{}, ErrPartyNotFound
		}
		return PartyRecord{}, fmt.Errorf("querying party: %w", err)
	}
	return rec, nil
}

// GetByID retrieves a party record by its primary key.
//
// Precondition: id must be > 0.
// Postcondition: Returns the record or ErrPartyNotFound.
func (r *PartyRepository) GetByID(ctx context.Context, id int64) (PartyRecord, error) {
	var rec PartyRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(road_id, ''), wave_index, created_at, updated_at
		FROM parties WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.RoadID, &rec.WaveIndex, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartyRecord{}, ErrPartyNotFound
		}
		return PartyRecord{}, fmt.Errorf("querying party: %w", err)
	}
	return rec, nil
}

// List returns all parties ordered by creation time.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *PartyRepository) List(ctx context.Context) ([]PartyRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(road_id, ''), wave_index, created_at, updated_at
		FROM parties ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing parties: %w", err)
	}
	defer rows.Close()

	recs := make([]PartyRecord, 0)
	for rows.Next() {
		var rec PartyRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.RoadID, &rec.WaveIndex, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning party row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LoadMembers returns the party's hero rows as member specs in slot order,
// ready for assembly.
//
// Precondition: partyID must reference an existing party.
// Postcondition: Returns the specs or ErrPartyNotFound when no rows exist.
func (r *PartyRepository) LoadMembers(ctx context.Context, partyID int64) ([]party.MemberSpec, error) {
	rows, err := r.db.Query(ctx, `
		SELECT hero_id, name, archetype, level, experience, health, resource, equipment
		FROM heroes WHERE party_id = $1 ORDER BY slot ASC`,
		partyID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading heroes: %w", err)
	}
	defer rows.Close()

	specs := make([]party.MemberSpec, 0, party.Size)
	for rows.Next() {
		var (
			spec     party.MemberSpec
			health   float64
			resource float64
			equipRaw []byte
		)
		if err := rows.Scan(
			&spec.HeroID, &spec.Name, &spec.Archetype, &spec.Level, &spec.Experience,
			&health, &resource, &equipRaw,
		); err != nil {
			return nil, fmt.Errorf("scanning hero row: %w", err)
		}
		spec.Health = &health
		spec.Resource = &resource
		if len(equipRaw) > 0 {
			var mod stats.Modifier
			if err := json.Unmarshal(equipRaw, &mod); err != nil {
				return nil, fmt.Errorf("decoding equipment for hero %q: %w", spec.HeroID, err)
			}
			spec.Equipment = &mod
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, ErrPartyNotFound
	}
	return specs, nil
}

// SaveMembers upserts the party's hero rows keyed by slot.
//
// Precondition: partyID must reference an existing party.
// Postcondition: Every state is persisted, or nothing is (single transaction).
func (r *PartyRepository) SaveMembers(ctx context.Context, partyID int64, states []party.SaveState) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, st := range states {
		if err := upsertHero(ctx, tx, partyID, st); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing hero save: %w", err)
	}
	return nil
}

// SaveProgress records the party's road position. An empty roadID clears it.
//
// Precondition: partyID must be > 0; waveIndex must be >= 0.
// Postcondition: Returns nil on success, ErrPartyNotFound if no row updated.
func (r *PartyRepository) SaveProgress(ctx context.Context, partyID int64, roadID string, waveIndex int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE parties SET road_id = NULLIF($2, ''), wave_index = $3, updated_at = NOW()
		WHERE id = $1`,
		partyID, roadID, waveIndex,
	)
	if err != nil {
		return fmt.Errorf("saving party progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPartyNotFound
	}
	return nil
}

// Delete removes a party and, via cascade, its hero rows.
//
// Postcondition: Returns nil on success, ErrPartyNotFound if no row deleted.
func (r *PartyRepository) Delete(ctx context.Context, partyID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM parties WHERE id = $1`, partyID)
	if err != nil {
		return fmt.Errorf("deleting party: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPartyNotFound
	}
	return nil
}

func upsertHero(ctx context.Context, tx pgx.Tx, partyID int64, st party.SaveState) error {
	equip, err := equipmentJSON(st.Equipment)
	if err != nil {
		return fmt.Errorf("encoding equipment for hero %q: %w", st.HeroID, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO heroes
			(party_id, hero_id, name, archetype, slot, level, experience, health, resource, equipment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (party_id, slot) DO UPDATE SET
			hero_id = EXCLUDED.hero_id,
			name = EXCLUDED.name,
			archetype = EXCLUDED.archetype,
			level = EXCLUDED.level,
			experience = EXCLUDED.experience,
			health = EXCLUDED.health,
			resource = EXCLUDED.resource,
			equipment = EXCLUDED.equipment,
			updated_at = NOW()`,
		partyID, st.HeroID, st.Name, st.Archetype, st.Slot,
		st.Level, st.Experience, st.Health, st.Resource, equip,
	)
	if err != nil {
		return fmt.Errorf("upserting hero %q: %w", st.HeroID, err)
	}
	return nil
}

// equipmentJSON marshals a gear bonus for JSONB storage; nil stays NULL so
// an unequipped hero never round-trips through a zero-valued modifier.
func equipmentJSON(mod *stats.Modifier) ([]byte, error) {
	if mod == nil {
		return nil, nil
	}
	return json.Marshal(mod)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
