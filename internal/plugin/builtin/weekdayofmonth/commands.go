package weekdayofmonth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"nthweekday/internal/configflow"
	"nthweekday/internal/sensor"
	"nthweekday/internal/storage"
	"nthweekday/internal/transport/telegram/router"
	"nthweekday/internal/weekday"
)

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "wom list",
			Aliases:     []string{"sensors"},
			Description: "list weekday sensors and their state",
			Usage:       "/wom list",
			Access:      router.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdList,
		},
		{
			Route:       "wom add",
			Description: "add a weekday sensor",
			Usage:       `/wom add "<name>" <days> <ordinals>  e.g. /wom add "Bin day" sat -1,2`,
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      p.cmdAdd,
		},
		{
			Route:       "wom edit",
			Description: "change the days or ordinals of a sensor",
			Usage:       "/wom edit <id> <days> <ordinals>",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      p.cmdEdit,
		},
		{
			Route:       "wom remove",
			Aliases:     []string{"wom_rm"},
			Description: "remove a weekday sensor",
			Usage:       "/wom remove <id>",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      p.cmdRemove,
		},
		{
			Route:       "wom check",
			Description: "test a rule against a date",
			Usage:       "/wom check <days> <ordinals> [YYYY-MM-DD]",
			Access:      router.AccessEveryone,
			Handle:      p.cmdCheck,
		},
	}
}

func splitCSV(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// formMessage renders form errors the way a user can act on them.
func formMessage(errs map[string]string) string {
	if errs["base"] == configflow.ErrorKeyDuplicate {
		return "each ordinal may appear only once"
	}
	fields := make([]string, 0, len(errs))
	for k := range errs {
		if k != "base" {
			fields = append(fields, k)
		}
	}
	if len(fields) == 0 {
		return "invalid input"
	}
	slices.Sort(fields)
	return "invalid " + strings.Join(fields, ", ") +
		" (days: " + strings.Join(weekday.Labels[:], ",") + "; ordinals: " + strings.Join(weekday.OrdinalOptions, ",") + ")"
}

func (p *Plugin) cmdList(ctx context.Context, req *router.Request) error {
	states := p.Sensors()
	if len(states) == 0 {
		return req.Reply(ctx, "no sensors configured")
	}
	var b strings.Builder
	b.WriteString("<b>weekday sensors</b>\n")
	for _, st := range states {
		id := st.EntryID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&b, "%s <code>%s</code> %s: %s",
			stateIcon(st.IsOn), id, html.EscapeString(st.Name), html.EscapeString(describeRule(st)))
		if next, ok := st.Attributes[sensor.AttrNextMatch].(string); ok {
			fmt.Fprintf(&b, " (next %s)", next)
		}
		b.WriteByte('\n')
	}
	return req.ReplyHTML(ctx, b.String())
}

func stateIcon(on bool) string {
	if on {
		return "🟢"
	}
	return "⚪"
}

func (p *Plugin) cmdAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 3 {
		return req.Reply(ctx, "usage: /wom add \"<name>\" <days> <ordinals>")
	}
	in := configflow.UserInput{
		Name:       req.Args[0],
		Weekdays:   splitCSV(req.Args[1]),
		NthWeekday: splitCSV(req.Args[2]),
	}
	res, err := p.flow.Create(ctx, in, req.FromID)
	if err != nil {
		return err
	}
	if !res.OK() {
		return req.Reply(ctx, formMessage(res.Errors))
	}
	return req.Reply(ctx, fmt.Sprintf("added %s (%s)", res.Entry.Name, res.Entry.ID))
}

func (p *Plugin) cmdEdit(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 3 {
		return req.Reply(ctx, "usage: /wom edit <id> <days> <ordinals>")
	}
	res, err := p.flow.Update(ctx, req.Args[0], configflow.OptionsInput{
		Weekdays:   splitCSV(req.Args[1]),
		NthWeekday: splitCSV(req.Args[2]),
	}, req.FromID)
	if errors.Is(err, storage.ErrNotFound) {
		return req.Reply(ctx, "no sensor with id "+req.Args[0])
	}
	if err != nil {
		return err
	}
	if !res.OK() {
		return req.Reply(ctx, formMessage(res.Errors))
	}
	return req.Reply(ctx, fmt.Sprintf("updated %s: %s", res.Entry.Name, describe(res.Entry.Weekdays, res.Entry.NthWeekday)))
}

func (p *Plugin) cmdRemove(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "usage: /wom remove <id>")
	}
	err := p.flow.Remove(ctx, req.Args[0], req.FromID)
	if errors.Is(err, storage.ErrNotFound) {
		return req.Reply(ctx, "no sensor with id "+req.Args[0])
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, "removed "+req.Args[0])
}

func (p *Plugin) cmdCheck(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, "usage: /wom check <days> <ordinals> [YYYY-MM-DD]")
	}
	days, ords := splitCSV(strings.ToLower(req.Args[0])), splitCSV(req.Args[1])
	date := p.now()
	if len(req.Args) > 2 {
		d, err := time.ParseInLocation(time.DateOnly, req.Args[2], date.Location())
		if err != nil {
			return req.Reply(ctx, "date must be YYYY-MM-DD")
		}
		date = d
	}
	verdict := "no"
	if weekday.MatchesStrings(days, ords, date) {
		verdict = "yes"
	}
	return req.Reply(ctx, fmt.Sprintf("%s is the %s? %s", date.Format("Mon 2006-01-02"), describe(days, ords), verdict))
}
