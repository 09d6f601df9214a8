// Package reports aggregates dashboard counters for the practice.
package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier abstracts the pgx query interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Dashboard is the main practice overview.
type Dashboard struct {
	TotalPatients        int `json:"total_patients"`
	PatientsNeedingBilan int `json:"patients_needing_bilan"`
	TodayAppointments    int `json:"today_appointments"`
	WeekAppointments     int `json:"week_appointments"`
	PendingNotifications int `json:"pending_notifications"`
	UpcomingBilans       int `json:"upcoming_bilans"`
}

// Store computes report aggregates.
type Store struct {
	pool Querier
}

// NewStore creates a report store.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// GetDashboard computes the dashboard counters for the given reference date.
// The week window runs Monday through Sunday.
func (s *Store) GetDashboard(ctx context.Context, today time.Time, maxDays int) (*Dashboard, error) {
	d := &Dashboard{}

	// Monday of the current week.
	weekday := int(today.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := today.AddDate(0, 0, 1-weekday)
	weekEnd := weekStart.AddDate(0, 0, 6)

	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&d.TotalPatients)
	if err != nil {
		return nil, fmt.Errorf("reports: total patients: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM patients
		WHERE last_bilan_date IS NULL OR last_bilan_date <= $1`,
		today.AddDate(0, 0, -maxDays)).Scan(&d.PatientsNeedingBilan)
	if err != nil {
		return nil, fmt.Errorf("reports: patients needing bilan: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE date = $1 AND status = 'scheduled'`, today).Scan(&d.TodayAppointments)
	if err != nil {
		return nil, fmt.Errorf("reports: today appointments: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE date BETWEEN $1 AND $2 AND status = 'scheduled'`,
		weekStart, weekEnd).Scan(&d.WeekAppointments)
	if err != nil {
		return nil, fmt.Errorf("reports: week appointments: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE status = 'pending'`).Scan(&d.PendingNotifications)
	if err != nil {
		return nil, fmt.Errorf("reports: pending notifications: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE date >= $1 AND kind = 'bilan' AND status = 'scheduled'`, today).Scan(&d.UpcomingBilans)
	if err != nil {
		return nil, fmt.Errorf("reports: upcoming bilans: %w", err)
	}

	return d, nil
}

// MonthlyStat is one month's appointment breakdown.
type MonthlyStat struct {
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
	Missed    int    `json:"missed"`
	Bilans    int    `json:"bilans"`
}

// MonthlyAppointments breaks the year's appointments down per month. Months
// without appointments are absent from the result.
func (s *Store) MonthlyAppointments(ctx context.Context, year int) ([]MonthlyStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(MONTH FROM date)::int AS month,
		       count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(*) FILTER (WHERE status = 'missed'),
		       count(*) FILTER (WHERE kind = 'bilan')
		FROM appointments
		WHERE EXTRACT(YEAR FROM date) = $1
		GROUP BY month
		ORDER BY month`, year)
	if err != nil {
		return nil, fmt.Errorf("reports: monthly appointments: %w", err)
	}
	defer rows.Close()

	stats := []MonthlyStat{}
	for rows.Next() {
		var m MonthlyStat
		if err := rows.Scan(&m.Month, &m.Total, &m.Completed, &m.Cancelled, &m.Missed, &m.Bilans); err != nil {
			return nil, fmt.Errorf("reports: scan monthly stat: %w", err)
		}
		m.MonthName = time.Month(m.Month).String()
		stats = append(stats, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: monthly appointments: %w", err)
	}
	return stats, nil
}

// BilanStatus is the compliance overview of the patient base.
type BilanStatus struct {
	TotalPatients             int     `json:"total_patients"`
	WithValidBilan            int     `json:"patients_with_valid_bilan"`
	WithoutValidBilan         int     `json:"patients_without_valid_bilan"`
	WithUpcomingBilan         int     `json:"patients_with_upcoming_bilan"`
	NeedingBilanNoAppointment int     `json:"patients_needing_bilan_without_appointment"`
	ValidBilanPercentage      float64 `json:"valid_bilan_percentage"`
}

// GetBilanStatus reports how much of the patient base is current on its
// assessments under the given threshold.
func (s *Store) GetBilanStatus(ctx context.Context, today time.Time, maxDays int) (*BilanStatus, error) {
	b := &BilanStatus{}
	cutoff := today.AddDate(0, 0, -maxDays)

	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&b.TotalPatients)
	if err != nil {
		return nil, fmt.Errorf("reports: total patients: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM patients
		WHERE last_bilan_date IS NOT NULL AND last_bilan_date > $1`, cutoff).Scan(&b.WithValidBilan)
	if err != nil {
		return nil, fmt.Errorf("reports: valid bilans: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM patients
		WHERE last_bilan_date IS NULL OR last_bilan_date <= $1`, cutoff).Scan(&b.WithoutValidBilan)
	if err != nil {
		return nil, fmt.Errorf("reports: overdue bilans: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(DISTINCT p.id)
		FROM patients p
		JOIN appointments a ON a.patient_id = p.id
		WHERE a.date >= $1 AND a.kind = 'bilan' AND a.status = 'scheduled'
		  AND (p.last_bilan_date IS NULL OR p.last_bilan_date <= $2)`,
		today, cutoff).Scan(&b.WithUpcomingBilan)
	if err != nil {
		return nil, fmt.Errorf("reports: upcoming bilan patients: %w", err)
	}

	b.NeedingBilanNoAppointment = b.WithoutValidBilan - b.WithUpcomingBilan
	if b.TotalPatients > 0 {
		b.ValidBilanPercentage = math.Round(float64(b.WithValidBilan)/float64(b.TotalPatients)*10000) / 100
	}
	return b, nil
}

// ChannelStats counts one channel's notifications per status.
type ChannelStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// NotificationStats groups recent notifications by channel and status.
type NotificationStats struct {
	Total     int                     `json:"total"`
	ByChannel map[string]ChannelStats `json:"by_channel"`
	ByStatus  ChannelStats            `json:"by_status"`
}

// GetNotificationStats aggregates the notifications created since the given
// instant.
func (s *Store) GetNotificationStats(ctx context.Context, since time.Time) (*NotificationStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel, status, count(*)
		FROM notifications
		WHERE created_at >= $1
		GROUP BY channel, status`, since)
	if err != nil {
		return nil, fmt.Errorf("reports: notification stats: %w", err)
	}
	defer rows.Close()

	stats := &NotificationStats{ByChannel: map[string]ChannelStats{}}
	for rows.Next() {
		var channel, status string
		var count int
		if err := rows.Scan(&channel, &status, &count); err != nil {
			return nil, fmt.Errorf("reports: scan notification stat: %w", err)
		}
		stats.Total += count

		c := stats.ByChannel[channel]
		c.Total += count
		switch status {
		case "sent":
			c.Sent += count
			stats.ByStatus.Sent += count
		case "pending":
			c.Pending += count
			stats.ByStatus.Pending += count
		case "failed":
			c.Failed += count
			stats.ByStatus.Failed += count
		}
		stats.ByChannel[channel] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: notification stats: %w", err)
	}
	stats.ByStatus.Total = stats.Total
	return stats, nil
}
