package service

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"sms-number-bot/internal/domain"
)

const brand = "CRAZY◉▿◉SMS"

// Reply keyboard labels.
const (
	labelRequestNumber = "⚡ Request number"
	labelAccount       = "👤 Account"
	labelTerms         = "🧾 Terms of use"
	labelSupport       = "🆘 Support"
	labelHome          = "🏠 Home"
	labelBack          = "🔙 Back"
	labelCreateAccount = "💡 Create account"
	labelLogin         = "✅ Log in"
	labelStats         = "📊 Statistics"
)

// Callback data. Country, service and admin price picks carry the code after
// the prefix.
const (
	cbRecheck         = "recheck"
	cbCountryPrefix   = "c_"
	cbServicePrefix   = "s_"
	cbChangeNumber    = "chg_num"
	cbCancelNumber    = "cancel_num"
	cbRelistCountries = "relist_countries"
	cbGoHome          = "go_home"

	cbAdminPrices      = "ad_prices"
	cbAdminProviders   = "ad_providers"
	cbAdminChannels    = "ad_channels"
	cbAdminStats       = "ad_stats"
	cbAdminBack        = "ad_back"
	cbAdminPricePrefix = "adp_"
	cbToggle5Sim       = "tog_5sim"
	cbToggleSMS        = "tog_sms"
)

func replyKeyboard(rows ...[]string) *domain.Keyboard {
	kb := &domain.Keyboard{}
	for _, row := range rows {
		buttons := make([]domain.Button, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, domain.Button{Text: label})
		}
		kb.Rows = append(kb.Rows, buttons)
	}
	return kb
}

func inlineKeyboard(rows ...[]domain.Button) *domain.Keyboard {
	return &domain.Keyboard{Inline: true, Rows: rows}
}

// inlineGrid lays buttons out perRow to a row.
func inlineGrid(perRow int, buttons []domain.Button) *domain.Keyboard {
	kb := &domain.Keyboard{Inline: true}
	for len(buttons) > 0 {
		n := min(perRow, len(buttons))
		kb.Rows = append(kb.Rows, buttons[:n])
		buttons = buttons[n:]
	}
	return kb
}

func btn(text, data string) domain.Button {
	return domain.Button{Text: text, Data: data}
}

func mainMenu() *domain.Keyboard {
	return replyKeyboard(
		[]string{labelRequestNumber, labelAccount},
		[]string{labelTerms, labelSupport},
	)
}

func backHomeMenu() *domain.Keyboard {
	return replyKeyboard([]string{labelBack, labelHome})
}

func accountMenu() *domain.Keyboard {
	return replyKeyboard(
		[]string{labelCreateAccount, labelLogin},
		[]string{labelStats, labelHome},
	)
}

func isMenuLabel(text string) bool {
	switch text {
	case labelRequestNumber, labelAccount, labelTerms, labelSupport, labelHome,
		labelBack, labelCreateAccount, labelLogin, labelStats:
		return true
	}
	return false
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func userLink(id int64, name string) string {
	if name == "" {
		name = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("<a href='tg://user?id=%d'>%s</a>", id, html.EscapeString(name))
}

func (s *Service) welcomeText(locale string) string {
	if locale == "" {
		locale = "N/A"
	}
	return fmt.Sprintf("<b>%s</b>\n"+
		"━━━━━━━━━━━━━━━\n"+
		"👋 Welcome!\n"+
		"🛰️ Language: <code>%s</code>\n\n"+
		"🚀 Activate your accounts on every platform with fast, working virtual numbers.\n"+
		"━━━━━━━━━━━━━━━\n"+
		"🛠 Support: <a href='https://t.me/%s'>click here</a>",
		brand, html.EscapeString(locale), s.cfg.AdminUsername)
}

const termsText = "📜 <b>Terms of use</b>\n\n" +
	"• The service is meant for activation, testing and privacy within local law and platform policies.\n" +
	"• Any unlawful use is forbidden.\n" +
	"• Numbers are temporary; availability and prices may change.\n" +
	"• By using the bot you accept these terms."

func (s *Service) supportText() string {
	return fmt.Sprintf("🧑‍💻 Contact support:\n@%s\n"+
		"🔗 <a href='https://t.me/%s'>Open a direct chat</a>\n\n"+
		"If direct messages are closed, write here and the bot forwards it to the support channel.",
		s.cfg.AdminUsername, s.cfg.AdminUsername)
}

func (s *Service) subscribeText() string {
	var b strings.Builder
	b.WriteString("🔔 To continue, please join the following channels:\n")
	for _, ch := range s.cfg.ForceChannels {
		b.WriteString("• " + ch + "\n")
	}
	b.WriteString("\nThen press the button to re-check.")
	return b.String()
}

func subscribeKeyboard() *domain.Keyboard {
	return inlineKeyboard([]domain.Button{btn("✅ I joined, check again", cbRecheck)})
}

func (s *Service) countryKeyboard(prices map[string]float64, prefix string, back bool) *domain.Keyboard {
	buttons := make([]domain.Button, 0, len(domain.Countries))
	for _, c := range domain.Countries {
		label := fmt.Sprintf("%s — %s %s", c.Name, formatPrice(prices[c.Code]), s.cfg.Currency)
		buttons = append(buttons, btn(label, prefix+c.Code))
	}
	kb := inlineGrid(2, buttons)
	if back {
		kb.Rows = append(kb.Rows, []domain.Button{btn("↩️ Back", cbAdminBack)})
	}
	return kb
}

func serviceKeyboard() *domain.Keyboard {
	buttons := make([]domain.Button, 0, len(domain.Services))
	for _, svc := range domain.Services {
		buttons = append(buttons, btn(svc.Name, cbServicePrefix+svc.Code))
	}
	return inlineGrid(2, buttons)
}

func waitingCodeKeyboard() *domain.Keyboard {
	return inlineKeyboard(
		[]domain.Button{btn("🔁 Change number", cbChangeNumber)},
		[]domain.Button{btn("❌ Cancel number", cbCancelNumber)},
	)
}

func (s *Service) orderText(o *domain.Order) string {
	return fmt.Sprintf("📲 Your number from <b>%s</b> is ready\n"+
		"• Country: <code>%s</code>\n"+
		"• Service: <code>%s</code>\n"+
		"• Price: <b>%s %s</b>\n"+
		"• Number: <code>%s</code>\n\n"+
		"The code will show up here as soon as it arrives.",
		brand, o.Country, o.Service, formatPrice(o.Price), s.cfg.Currency, o.Phone)
}

func adminPanelKeyboard() *domain.Keyboard {
	return inlineKeyboard(
		[]domain.Button{btn("💰 Edit prices", cbAdminPrices), btn("🔌 Providers", cbAdminProviders)},
		[]domain.Button{btn("📢 Channels", cbAdminChannels), btn("📈 Statistics", cbAdminStats)},
	)
}

func adminBackKeyboard() *domain.Keyboard {
	return inlineKeyboard([]domain.Button{btn("↩️ Back", cbAdminBack)})
}

func enabledLabel(v string) string {
	if v == "1" {
		return "enabled ✅"
	}
	return "disabled ❌"
}

func keyLabel(key string) string {
	if key != "" {
		return "present 🔐"
	}
	return "missing ⚠️"
}
