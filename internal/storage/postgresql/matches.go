package postgresql

import (
	"context"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// SaveMatch вставляет или обновляет матч. Флаг notified у существующей строки сохраняется.
func (s *Storage) SaveMatch(ctx context.Context, m models.Match) (*models.Match, error) {
	const op = "storage.postgresql.SaveMatch"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	err := s.DB.QueryRowContext(ctx, `INSERT INTO matches
		(id, home_team, away_team, competition, kickoff, home_odds, draw_odds, away_odds, has_draw, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			competition = EXCLUDED.competition,
			kickoff = EXCLUDED.kickoff,
			home_odds = EXCLUDED.home_odds,
			draw_odds = EXCLUDED.draw_odds,
			away_odds = EXCLUDED.away_odds,
			has_draw = EXCLUDED.has_draw,
			url = EXCLUDED.url
		RETURNING notified`,
		m.ID, m.HomeTeam, m.AwayTeam, m.Competition, m.Kickoff,
		m.Odds.Home, m.Odds.Draw, m.Odds.Away, m.Odds.HasDraw, m.URL).Scan(&m.Notified)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return &m, nil
}

// MarkMatchNotified выставляет флаг уведомления.
func (s *Storage) MarkMatchNotified(ctx context.Context, id string) error {
	const op = "storage.postgresql.MarkMatchNotified"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE matches SET notified = TRUE WHERE id = $1`, id); err != nil {
		return mapErr(op, err)
	}
	return nil
}
