package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// DateLayout формат дат в сообщениях.
const DateLayout = "02.01.2006 15:04"

// MatchText карточка матча. Для нового матча добавляется заголовок.
func MatchText(m models.Match, isNew bool) string {
	var b strings.Builder
	if isNew {
		b.WriteString("НОВЫЙ МАТЧ!\n")
	}
	fmt.Fprintf(&b, "%s - %s\n", m.HomeTeam, m.AwayTeam)
	if m.Competition != "" {
		b.WriteString(m.Competition)
		b.WriteString("\n")
	}
	b.WriteString(m.Kickoff.UTC().Format(DateLayout))
	b.WriteString("\n\nКоэффициенты:\n")
	if m.Odds.HasDraw {
		fmt.Fprintf(&b, "1: %.2f   X: %.2f   2: %.3f", m.Odds.Home, m.Odds.Draw, m.Odds.Away)
	} else {
		fmt.Fprintf(&b, "1: %.2f   2: %.3f", m.Odds.Home, m.Odds.Away)
	}
	return b.String()
}

// SettlementText подтверждение оплаты пользователю.
func SettlementText(planTitle string, end time.Time, renewal bool) string {
	status := "Подписка активирована!"
	if renewal {
		status = "Подписка продлена!"
	}
	return fmt.Sprintf("%s\n\nТип: %s\nДействует до: %s\n\nСпасибо, что выбрали нас.",
		status, planTitle, end.UTC().Format(DateLayout))
}

// GrantText сообщение пользователю о выдаче подписки администратором.
func GrantText(planTitle string, end time.Time, renewal bool) string {
	status := "Вам выдана подписка!"
	if renewal {
		status = "Ваша подписка была продлена администратором!"
	}
	return fmt.Sprintf("%s\n\nТип: %s\nДействует до: %s", status, planTitle, end.UTC().Format(DateLayout))
}

// RevokeText сообщение пользователю об аннулировании подписки.
func RevokeText() string {
	return "Ваша подписка была аннулирована администратором.\n\n" +
		"Если вы считаете это ошибкой, свяжитесь с поддержкой."
}

// ExpiryWarningText предупреждение о скором окончании подписки.
func ExpiryWarningText(planTitle string, end time.Time) string {
	return fmt.Sprintf("Внимание! Срок вашей подписки заканчивается\n\n"+
		"Тип подписки: %s\nДействительна до: %s\n\n"+
		"Чтобы продолжить получать информацию о матчах, продлите подписку.",
		planTitle, end.UTC().Format(DateLayout))
}

// WeeklyStatsText еженедельный отчёт для администраторов.
func WeeklyStatsText(stats models.WeeklyStats, plans models.Plans) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Еженедельный отчёт, неделя %d/%d (%s - %s)\n\n",
		stats.WeekNumber, stats.Year,
		stats.WeekStart.UTC().Format("02.01.2006"), stats.WeekEnd.UTC().Format("02.01.2006"))
	fmt.Fprintf(&b, "Активных подписок: %d\n", stats.ActiveSubscriptions)
	fmt.Fprintf(&b, "Пользователей без подписки: %d\n", stats.InactiveUsers)
	fmt.Fprintf(&b, "Новых подписок за неделю: %d\n", stats.NewSubscriptions)
	if stats.MostPopularPlan != nil {
		fmt.Fprintf(&b, "Самая популярная подписка: %s", plans.Title(*stats.MostPopularPlan))
	} else {
		b.WriteString("Самая популярная подписка: нет данных")
	}
	return b.String()
}
