package menu

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/user"
)

const usersUsage = "users [<network-id> | count | add <name> | remove <user>]"

// =============================================================================
// Users
// =============================================================================

func (m *Menu) usersCmd(ctx context.Context, w io.Writer, args []string) error {
	if len(args) == 0 {
		users, err := m.users.ListUsers(ctx, "")
		if err != nil {
			return err
		}
		return printUsers(w, users)
	}

	switch args[0] {
	case "count":
		n, err := m.users.UserCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d user(s)\n", n)
		return nil

	case "add":
		if len(args) < 2 {
			return usageError("users add <name>")
		}
		u, err := m.users.CreateUser(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created user %s %s\n", u.ID, u.Username)
		return nil

	case "remove":
		if len(args) != 2 {
			return usageError("users remove <user>")
		}
		u, err := m.users.FindUser(ctx, args[1])
		if err != nil {
			return err
		}
		if err := m.users.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "removed user %s\n", u.Username)
		return nil
	}

	if len(args) != 1 {
		return usageError(usersUsage)
	}
	users, err := m.users.ListUsers(ctx, args[0])
	if err != nil {
		return err
	}
	return printUsers(w, users)
}

func (m *Menu) connect(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 {
		return usageError("connect <user> <network-id>")
	}
	u, err := m.users.FindUser(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := m.users.Connect(ctx, u.ID, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s connected to %s\n", u.Username, args[1])
	return nil
}

func (m *Menu) disconnect(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return usageError("disconnect <user>")
	}
	u, err := m.users.FindUser(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := m.users.Disconnect(ctx, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s disconnected\n", u.Username)
	return nil
}

func printUsers(w io.Writer, users []user.User) error {
	if len(users) == 0 {
		fmt.Fprintln(w, "no users")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNETWORK")
	for _, u := range users {
		network := "-"
		if u.NetworkID != nil {
			network = *u.NetworkID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Username, network)
	}
	return tw.Flush()
}

// =============================================================================
// Hubs
// =============================================================================

func (m *Menu) hub(ctx context.Context, w io.Writer, args []string) error {
	switch {
	case len(args) == 1:
		devices, err := m.devices.ListByHub(ctx, args[0])
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintf(w, "no devices on %s\n", args[0])
			return nil
		}
		tw := newTable(w)
		fmt.Fprintln(tw, "SERIAL\tNAME\tTYPE\tPOWER")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Serial, d.Name, d.Type, powerLabel(d.IsOn))
		}
		return tw.Flush()

	case len(args) == 3 && args[1] == "attach":
		if err := m.devices.AttachToHub(ctx, args[0], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(w, "attached %s to %s\n", args[2], args[0])
		return nil

	case len(args) == 3 && args[1] == "detach":
		if err := m.devices.DetachFromHub(ctx, args[0], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(w, "detached %s from %s\n", args[2], args[0])
		return nil
	}
	return usageError("hub <hub-serial> [attach|detach <serial>]")
}

func (m *Menu) hubUsers(ctx context.Context, w io.Writer, args []string) error {
	switch {
	case len(args) == 1:
		users, err := m.users.HubUsers(ctx, args[0])
		if err != nil {
			return err
		}
		return printUsers(w, users)

	case len(args) == 3 && (args[1] == "add" || args[1] == "remove"):
		u, err := m.users.FindUser(ctx, args[2])
		if err != nil {
			return err
		}
		if args[1] == "add" {
			if err := m.users.AddHubUser(ctx, args[0], u.ID); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s added to %s\n", u.Username, args[0])
			return nil
		}
		if err := m.users.RemoveHubUser(ctx, args[0], u.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s removed from %s\n", u.Username, args[0])
		return nil
	}
	return usageError("hubusers <hub-serial> [add|remove <user>]")
}
