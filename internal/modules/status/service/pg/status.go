package pg

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"live_bots/internal/models"
	"live_bots/pkg/db"
)

// Status — персистентный стор снапшотов ботов.
// Снапшот лежит jsonb-ом: читают его люди и /status, не SQL.
type Status struct {
	txManager db.TxManager
}

func NewStatus(txManager *db.PgTxManager) *Status {
	return &Status{txManager: txManager}
}

const createStatusTable = `
CREATE TABLE IF NOT EXISTS bot_status (
    bot_id     TEXT PRIMARY KEY,
    snapshot   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *Status) Init(ctx context.Context) error {
	return s.txManager.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createStatusTable)
		if err != nil {
			return fmt.Errorf("create bot_status: %w", err)
		}
		return nil
	})
}

// Upsert — последний снапшот бота, каждый тик.
func (s *Status) Upsert(ctx context.Context, snap models.StatusSnapshot) error {
	payload, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.BotID, err)
	}

	_, err = s.txManager.Conn().Exec(ctx, `
		INSERT INTO bot_status (bot_id, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (bot_id)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`,
		snap.BotID, payload,
	)
	if err != nil {
		return fmt.Errorf("upsert bot_status %s: %w", snap.BotID, err)
	}
	return nil
}

// Load — снапшот одного бота. pgx.ErrNoRows, если бот ещё не писал.
func (s *Status) Load(ctx context.Context, botID string) (models.StatusSnapshot, error) {
	var payload []byte
	err := s.txManager.Conn().QueryRow(ctx,
		`SELECT snapshot FROM bot_status WHERE bot_id = $1`, botID,
	).Scan(&payload)
	if err != nil {
		return models.StatusSnapshot{}, fmt.Errorf("load bot_status %s: %w", botID, err)
	}

	var snap models.StatusSnapshot
	if err := sonic.Unmarshal(payload, &snap); err != nil {
		return models.StatusSnapshot{}, fmt.Errorf("unmarshal bot_status %s: %w", botID, err)
	}
	return snap, nil
}

// All — снапшоты всех ботов, для /status и дашбордов.
func (s *Status) All(ctx context.Context) ([]models.StatusSnapshot, error) {
	rows, err := s.txManager.Conn().Query(ctx,
		`SELECT snapshot FROM bot_status ORDER BY bot_id`)
	if err != nil {
		return nil, fmt.Errorf("select bot_status: %w", err)
	}
	defer rows.Close()

	var out []models.StatusSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan bot_status: %w", err)
		}
		var snap models.StatusSnapshot
		if err := sonic.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal bot_status: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
