package main

import (
	"context"
	"fmt"

	"github.com/gradpush/extrapoints/internal/models"
)

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := cli.flagSet("login", "-u USERNAME [-p PASSWORD]")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password, prompted when omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fs.Usage()
		return errHelp
	}
	if *password == "" {
		pwd, err := cli.promptPassword("Password: ")
		if err != nil {
			return err
		}
		*password = pwd
	}

	user, err := cli.session.Login(ctx, models.Credentials{Username: *username, Password: *password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cli.out, "Logged in as %s (%s)\n", user.DisplayName(), user.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context, args []string) error {
	fs := cli.flagSet("logout", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cli.session.Initialize(ctx); err != nil {
		cli.logger.Warn("failed to restore session before logout", "error", err)
	}
	if err := cli.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Logged out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context, args []string) error {
	fs := cli.flagSet("whoami", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := cli.requireSession(ctx); err != nil {
		return err
	}

	user, err := cli.session.GetCurrentUser(ctx)
	if err != nil {
		if user == nil {
			return err
		}
		cli.logger.Warn("showing cached profile", "error", err)
	}

	w := newTable(cli.out)
	fmt.Fprintf(w, "Username:\t%s\n", user.Username)
	fmt.Fprintf(w, "Name:\t%s\n", user.DisplayName())
	fmt.Fprintf(w, "Role:\t%s\n", user.Role)
	if user.StudentID != "" {
		fmt.Fprintf(w, "Student ID:\t%s\n", user.StudentID)
	}
	if user.Email != "" {
		fmt.Fprintf(w, "Email:\t%s\n", user.Email)
	}
	fmt.Fprintf(w, "Avatar:\t%s\n", cli.session.AvatarURL())
	return w.Flush()
}

func (cli *commandLine) register(ctx context.Context, args []string) error {
	fs := cli.flagSet("register", "-u USERNAME -name NAME [-student-id ID] [-role ROLE]")
	reg := models.Registration{}
	fs.StringVar(&reg.Username, "u", "", "username")
	fs.StringVar(&reg.Password, "p", "", "password, prompted when omitted")
	fs.StringVar(&reg.Name, "name", "", "real name")
	fs.StringVar(&reg.StudentID, "student-id", "", "student number")
	role := fs.String("role", string(models.RoleStudent), "student, teacher or admin")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Phone, "phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if reg.Username == "" || reg.Name == "" {
		fs.Usage()
		return errHelp
	}
	reg.Role = models.Role(*role)
	if reg.Password == "" {
		pwd, err := cli.promptPassword("Password: ")
		if err != nil {
			return err
		}
		reg.Password = pwd
	}

	msg, err := cli.session.Register(ctx, reg)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Fprintln(cli.out, orDefault(msg, "Registered"))
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, args []string) error {
	fs := cli.flagSet("reset-password", "-u USERNAME [-p NEW_PASSWORD]")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "new password, prompted when omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fs.Usage()
		return errHelp
	}
	if *password == "" {
		pwd, err := cli.promptPassword("New password: ")
		if err != nil {
			return err
		}
		*password = pwd
	}

	msg, err := cli.session.ResetPassword(ctx, models.PasswordReset{Username: *username, NewPassword: *password})
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	fmt.Fprintln(cli.out, orDefault(msg, "Password changed"))
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
