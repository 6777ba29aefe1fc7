package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// repeatKeyword marks a schedule as recurring.
const repeatKeyword = "repeat"

func (m *Menu) commandTable() map[string]command {
	quit := command{usage: "quit", summary: "leave the menu", run: func(context.Context, io.Writer, []string) error {
		return errQuit
	}}
	exit := quit
	exit.summary = ""

	return map[string]command{
		"help":       {usage: "help", summary: "list commands", run: m.help},
		"devices":    {usage: "devices [home-id]", summary: "list devices", run: m.listDevices},
		"add":        {usage: "add <type> <name>", summary: "create a device (" + deviceTypeList() + ")", run: m.addDevice},
		"remove":     {usage: "remove <serial>", summary: "delete a device", run: m.removeDevice},
		"show":       {usage: "show <serial>", summary: "show a device and its pending operations", run: m.showDevice},
		"ops":        {usage: "ops <serial>", summary: "list the operations a device supports", run: m.listOperations},
		"do":         {usage: "do <serial> <op> [args...]", summary: "invoke an operation now", run: m.invoke},
		"schedule":   {usage: "schedule <serial> <op> <HH:MM|seconds> [repeat] [-- args...]", summary: "defer an operation", run: m.schedule},
		"pending":    {usage: "pending [serial]", summary: "list scheduled operations", run: m.pending},
		"cancel":     {usage: "cancel <id>", summary: "cancel a scheduled operation", run: m.cancel},
		"networks":   {usage: "networks [add <name> <ip>]", summary: "list or add networks", run: m.networks},
		"homes":      {usage: "homes [<network-id> | add <network-id> <name>]", summary: "list or add homes", run: m.homesCmd},
		"assign":     {usage: "assign <home-id> <serial>", summary: "move a device into a home", run: m.assign},
		"power":      {usage: "power <home-id> on|off", summary: "switch every device in a home", run: m.power},
		"security":   {usage: "security <home-id>", summary: "assess a home's security", run: m.security},
		"energy":     {usage: "energy <home-id>", summary: "report a home's energy use", run: m.energy},
		"users":      {usage: usersUsage, summary: "list or manage users", run: m.usersCmd},
		"connect":    {usage: "connect <user> <network-id>", summary: "connect a user to a network", run: m.connect},
		"disconnect": {usage: "disconnect <user>", summary: "disconnect a user from its network", run: m.disconnect},
		"hub":        {usage: "hub <hub-serial> [attach|detach <serial>]", summary: "list or change a hub's devices", run: m.hub},
		"hubusers":   {usage: "hubusers <hub-serial> [add|remove <user>]", summary: "list or change a hub's users", run: m.hubUsers},
		"quit":       quit,
		"exit":       exit,
	}
}

func deviceTypeList() string {
	types := device.AllDeviceTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// =============================================================================
// Devices
// =============================================================================

func (m *Menu) listDevices(ctx context.Context, w io.Writer, args []string) error {
	var (
		devices []device.Device
		err     error
	)
	switch len(args) {
	case 0:
		devices, err = m.devices.ListDevices(ctx)
	case 1:
		devices, err = m.homes.Devices(ctx, args[0])
	default:
		return usageError("devices [home-id]")
	}
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no devices")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "SERIAL\tNAME\tTYPE\tPOWER\tKWH")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\n", d.Serial, d.Name, d.Type, powerLabel(d.IsOn), d.EnergyConsumption)
	}
	return tw.Flush()
}

func (m *Menu) addDevice(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 {
		return usageError("add <type> <name>")
	}
	d := &device.Device{
		Type: device.DeviceType(strings.ToLower(args[0])),
		Name: strings.Join(args[1:], " "),
	}
	if err := m.devices.CreateDevice(ctx, d); err != nil {
		return err
	}
	fmt.Fprintf(w, "created %s %s (%s)\n", d.Serial, d.Name, d.Type)
	return nil
}

func (m *Menu) removeDevice(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("remove <serial>")
	}
	if err := m.devices.DeleteDevice(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(w, "removed %s\n", args[0])
	if n := len(m.scheduler.ListPending(args[0])); n > 0 {
		fmt.Fprintf(w, "note: %d scheduled operation(s) still target %s and will report not found\n", n, args[0])
	}
	return nil
}

func (m *Menu) showDevice(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("show <serial>")
	}
	d, err := m.devices.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s (%s) %s\n", d.Serial, d.Name, d.Type, powerLabel(d.IsOn))
	if d.HomeID != nil {
		fmt.Fprintf(w, "  home: %s\n", *d.HomeID)
	}
	fmt.Fprintf(w, "  energy: %g kWh\n", d.EnergyConsumption)

	keys := make([]string, 0, len(d.State))
	for k := range d.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, d.State[k])
	}

	pending := m.scheduler.ListPending(d.Serial)
	fmt.Fprintf(w, "  pending operations: %d\n", len(pending))
	return nil
}

func (m *Menu) listOperations(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("ops <serial>")
	}
	d, err := m.devices.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	tw := newTable(w)
	for _, op := range device.Operations(d.Type) {
		params := make([]string, len(op.Params))
		for i, p := range op.Params {
			params[i] = fmt.Sprintf("<%s:%s>", p.Name, p.Kind)
		}
		note := ""
		if op.RequiresPower {
			note = "requires power"
		}
		fmt.Fprintf(tw, "  %s %s\t%s\n", op.Name, strings.Join(params, " "), note)
	}
	return tw.Flush()
}

func (m *Menu) invoke(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 {
		return usageError("do <serial> <op> [args...]")
	}
	serial, op := args[0], args[1]

	parsed, err := m.parseOperationArgs(ctx, serial, op, args[2:])
	if err != nil {
		return err
	}
	result, err := m.devices.Invoke(ctx, serial, op, parsed)
	if err != nil {
		return err
	}
	if result != nil {
		fmt.Fprintf(w, "%s %s: %v\n", serial, op, result)
		return nil
	}
	fmt.Fprintf(w, "%s %s: ok\n", serial, op)
	return nil
}

// parseOperationArgs converts textual arguments using the operation's
// parameter kinds. When the device or operation does not resolve, the raw
// strings are returned so the caller reports the resolution error.
func (m *Menu) parseOperationArgs(ctx context.Context, serial, op string, raw []string) ([]any, error) {
	d, err := m.devices.Resolve(ctx, serial)
	if err != nil {
		return stringArgs(raw), nil
	}
	operation, ok := device.LookupOperation(d.Type, op)
	if !ok {
		return stringArgs(raw), nil
	}
	return operation.ParseArgs(raw)
}

func stringArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		out[i] = s
	}
	return out
}

// =============================================================================
// Scheduler
// =============================================================================

func (m *Menu) schedule(ctx context.Context, w io.Writer, args []string) error {
	const usage = "schedule <serial> <op> <HH:MM|seconds> [repeat] [-- args...]"

	head, opArgs := splitArgs(args)
	if len(head) < 3 || len(head) > 4 {
		return usageError(usage)
	}
	recurring := false
	if len(head) == 4 {
		if !strings.EqualFold(head[3], repeatKeyword) {
			return usageError(usage)
		}
		recurring = true
	}
	serial, op := head[0], head[1]

	sched, err := schedule.Parse(head[2])
	if err != nil {
		return err
	}
	parsed, err := m.parseOperationArgs(ctx, serial, op, opArgs)
	if err != nil {
		return err
	}

	h, err := m.scheduler.Schedule(ctx, serial, op, parsed, sched, recurring)
	if err != nil {
		return err
	}

	when := sched.String()
	if recurring {
		if sched.Kind() == schedule.KindAbsolute {
			when += " daily"
		} else {
			when = "every " + sched.Delay().String()
		}
	}
	fmt.Fprintf(w, "scheduled %s %s on %s %s\n", h, op, serial, when)
	return nil
}

func (m *Menu) pending(_ context.Context, w io.Writer, args []string) error {
	if len(args) > 1 {
		return usageError("pending [serial]")
	}
	serial := ""
	if len(args) == 1 {
		serial = args[0]
	}

	views := m.scheduler.ListPending(serial)
	if len(views) == 0 {
		fmt.Fprintln(w, "no scheduled operations")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDEVICE\tOPERATION\tARGS\tWHEN\tREPEAT\tNEXT\tFIRES\tLAST ERROR")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%d\t%s\n",
			v.ID, v.DeviceSerial, v.Operation, formatArgs(v.Arguments), v.Schedule,
			v.Recurring, formatNext(v), v.Fires, v.LastError)
	}
	return tw.Flush()
}

func (m *Menu) cancel(_ context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("cancel <id>")
	}
	_, existed := m.scheduler.Get(schedule.Handle(args[0]))
	if err := m.scheduler.Cancel(schedule.Handle(args[0])); err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(w, "cancelled %s\n", args[0])
	} else {
		fmt.Fprintf(w, "%s is not pending\n", args[0])
	}
	return nil
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return "-"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}

func formatNext(v schedule.View) string {
	if v.State != schedule.StateArmed || v.NextFire.IsZero() {
		return string(v.State)
	}
	return v.NextFire.Local().Format(time.DateTime)
}

// =============================================================================
// Networks and homes
// =============================================================================

func (m *Menu) networks(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 0 {
		if len(args) != 3 || args[0] != "add" {
			return usageError("networks [add <name> <ip>]")
		}
		n, err := m.homes.CreateNetwork(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created network %s %s (%s)\n", n.ID, n.Name, n.IPAddress)
		return nil
	}

	networks, err := m.homes.ListNetworks(ctx)
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		fmt.Fprintln(w, "no networks")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tIP ADDRESS")
	for _, n := range networks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, n.Name, n.IPAddress)
	}
	return tw.Flush()
}

func (m *Menu) homesCmd(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 0 && args[0] == "add" {
		if len(args) < 3 {
			return usageError("homes add <network-id> <name>")
		}
		h, err := m.homes.CreateHome(ctx, args[1], strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created home %s %s\n", h.ID, h.Name)
		return nil
	}
	if len(args) > 1 {
		return usageError("homes [<network-id> | add <network-id> <name>]")
	}

	networkID := ""
	if len(args) == 1 {
		networkID = args[0]
	}
	homes, err := m.homes.ListHomes(ctx, networkID)
	if err != nil {
		return err
	}
	if len(homes) == 0 {
		fmt.Fprintln(w, "no homes")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tNETWORK")
	for _, h := range homes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.ID, h.Name, h.NetworkID)
	}
	return tw.Flush()
}

func (m *Menu) assign(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 {
		return usageError("assign <home-id> <serial>")
	}
	if err := m.homes.AssignDevice(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s is now in home %s\n", args[1], args[0])
	return nil
}

func (m *Menu) power(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return usageError("power <home-id> on|off")
	}
	result, err := m.homes.SetPowerAll(ctx, args[0], args[1] == "on")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "switched %s %d device(s)\n", args[1], len(result.Changed))

	serials := make([]string, 0, len(result.Failed))
	for serial := range result.Failed {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	for _, serial := range serials {
		fmt.Fprintf(w, "  %s failed: %s\n", serial, result.Failed[serial])
	}
	if len(serials) > 0 {
		return errors.New("some devices did not change")
	}
	return nil
}

func (m *Menu) security(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("security <home-id>")
	}
	r, err := m.homes.SecurityAssessment(ctx, args[0])
	if err != nil {
		return err
	}
	verdict := "NOT SECURE"
	if r.Secure {
		verdict = "SECURE"
	}
	fmt.Fprintf(w, "%s: %s (score %d/%d, %d security device(s), %d active)\n",
		r.HomeName, verdict, r.Score, r.MaxScore, r.SecurityDevices, r.ActiveSecurity)
	return nil
}

func (m *Menu) energy(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("energy <home-id>")
	}
	r, err := m.homes.EnergyReport(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %g kWh from %d of %d device(s) switched on\n",
		r.HomeName, r.TotalKWh, r.ActiveDevices, r.TotalDevices)
	return nil
}

func powerLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
