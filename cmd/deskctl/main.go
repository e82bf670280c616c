package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/billing"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/config"
	"github.com/ukydev/service-desk/internal/desk"
	"github.com/ukydev/service-desk/internal/models"
	"github.com/ukydev/service-desk/internal/workflow"
)

const tokenEnv = "DESK_TOKEN"

const usage = `usage: deskctl [-token TOKEN] [-json] <command> [flags] [service-id]

commands:
  login   -email E -password P [-save]   exchange credentials for a backend token
  token                                  show the resolved token's subject, role and expiry
  list                                   list completed services
  show    <id>                           show a service with its bill
  invoice [-email E] [-send] <id>        generate the invoice
  pay     -method M [-txn T] [-amount A] [-notes N] <id>
  deliver -type pickup|delivery [-person P -time T] [-address A -date D -contact C] [-notes N] <id>
`

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	api    *client.Client
	desk   *desk.Desk
	out    io.Writer
	asJSON bool
	token  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.WithError(err).Error("deskctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("deskctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	token := fs.String("token", "", "backend or desk token (default $"+tokenEnv+", then the token file)")
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.SetupLogging()

	api := client.New(cfg.Backend.URL, cfg.Endpoints, cfg.Backend.Timeout)
	a := &app{
		cfg:    cfg,
		api:    api,
		desk:   desk.New(api),
		out:    out,
		asJSON: *asJSON,
		token:  *token,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "login" {
		return a.login(ctx, rest)
	}

	raw, err := auth.ResolveToken(a.token, tokenEnv, cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("no token: pass -token, set %s or run deskctl login -save: %w", tokenEnv, err)
	}
	ctx = auth.WithToken(ctx, forwardToken(raw))

	switch cmd {
	case "token":
		return a.showToken(raw)
	case "list":
		return a.list(ctx)
	case "show":
		return a.show(ctx, rest)
	case "invoice":
		return a.invoice(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	case "deliver":
		return a.deliver(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// forwardToken unwraps a desk session token to the backend token it carries.
// Anything else is forwarded as is.
func forwardToken(raw string) string {
	claims, err := auth.NewService("", 0).ValidateToken(raw)
	if err != nil {
		return raw
	}
	return claims.ForwardToken(raw)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("DESK_PASSWORD"), "account password (default $DESK_PASSWORD)")
	save := fs.Bool("save", false, "write the token to the configured token file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login: -email and -password are required")
	}

	resp, err := a.api.Login(ctx, models.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return fmt.Errorf("login: %s", client.Message(err))
	}

	log.WithFields(log.Fields{
		"email": *email,
		"role":  models.ParseRole(string(resp.Role)),
	}).Info("Logged in")

	if *save {
		if a.cfg.Auth.TokenFile == "" {
			return errors.New("login: no token file configured (set DESK_TOKEN_FILE)")
		}
		if err := os.WriteFile(a.cfg.Auth.TokenFile, []byte(resp.Token+"\n"), 0o600); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		log.WithField("file", a.cfg.Auth.TokenFile).Info("Token saved")
		return nil
	}
	fmt.Fprintln(a.out, resp.Token)
	return nil
}

func (a *app) showToken(raw string) error {
	claims, err := auth.NewService("", 0).ValidateToken(raw)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if a.asJSON {
		return a.printJSON(claims)
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Subject:\t%s\n", claims.Subject)
	fmt.Fprintf(tw, "Role:\t%s\n", claims.Role)
	if claims.Exp > 0 {
		fmt.Fprintf(tw, "Expires:\t%s\n", time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "Desk session:\t%t\n", claims.BackendToken != "")
	return tw.Flush()
}

func (a *app) list(ctx context.Context) error {
	services, err := a.desk.List(ctx)
	if err != nil {
		return fmt.Errorf("list: %s", client.Message(err))
	}
	if a.asJSON {
		return a.printJSON(services)
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tVEHICLE\tREGISTRATION\tCOMPLETED\tNEXT")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.RequestID, s.CustomerName, s.VehicleName, s.RegistrationNumber, s.CompletionDate, workflow.Derive(s.WorkflowFlags))
	}
	return tw.Flush()
}

func serviceID(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one service id", fs.Name())
	}
	return fs.Arg(0), nil
}

func (a *app) show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := serviceID(fs)
	if err != nil {
		return err
	}
	view, err := a.desk.Load(ctx, id)
	if err != nil {
		return err
	}
	return a.printView(view)
}

func (a *app) invoice(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("invoice", flag.ContinueOnError)
	email := fs.String("email", "", "invoice recipient (default: the customer's email)")
	send := fs.Bool("send", false, "email the invoice")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := serviceID(fs)
	if err != nil {
		return err
	}
	view, err := a.desk.GenerateInvoice(ctx, id, desk.InvoiceInput{EmailAddress: *email, SendEmail: *send})
	return a.finish(view, err)
}

func (a *app) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	method := fs.String("method", "", "payment method (Cash, Card, UPI, ...)")
	txn := fs.String("txn", "", "transaction id (generated for cash)")
	amount := fs.Float64("amount", 0, "amount paid (default: the invoice total)")
	notes := fs.String("notes", "", "payment notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := serviceID(fs)
	if err != nil {
		return err
	}
	view, err := a.desk.RecordPayment(ctx, id, models.PaymentRequest{
		PaymentMethod: *method,
		TransactionID: *txn,
		Amount:        *amount,
		Notes:         *notes,
	})
	return a.finish(view, err)
}

func (a *app) deliver(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deliver", flag.ContinueOnError)
	kind := fs.String("type", models.DeliveryPickup, "pickup or delivery")
	person := fs.String("person", "", "pickup person")
	at := fs.String("time", "", "pickup time")
	address := fs.String("address", "", "delivery address")
	date := fs.String("date", "", "delivery date")
	contact := fs.String("contact", "", "contact number")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := serviceID(fs)
	if err != nil {
		return err
	}
	view, err := a.desk.ScheduleDelivery(ctx, id, models.DeliveryRequest{
		DeliveryType:    strings.ToLower(*kind),
		PickupPerson:    *person,
		PickupTime:      *at,
		DeliveryAddress: *address,
		DeliveryDate:    *date,
		ContactNumber:   *contact,
		Notes:           *notes,
	})
	return a.finish(view, err)
}

// finish prints the view after a transition, or its notices when it failed.
func (a *app) finish(view desk.View, err error) error {
	if err != nil {
		for _, n := range view.Notices {
			log.WithField("level", n.Level).Warn(n.Message)
		}
		return err
	}
	return a.printView(view)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", billing.Round2(v))
}

func (a *app) printView(v desk.View) error {
	if a.asJSON {
		return a.printJSON(v)
	}
	r := v.Record
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Service:\t%s\n", r.RequestID)
	fmt.Fprintf(tw, "Customer:\t%s\n", r.CustomerName)
	if r.CustomerEmail != "" {
		fmt.Fprintf(tw, "Email:\t%s\n", r.CustomerEmail)
	}
	fmt.Fprintf(tw, "Vehicle:\t%s (%s)\n", r.VehicleName, r.RegistrationNumber)
	fmt.Fprintf(tw, "Completed:\t%s\n", r.CompletionDate)
	fmt.Fprintf(tw, "Membership:\t%s\n", r.Membership)
	fmt.Fprintf(tw, "State:\t%s\n", v.State)
	if v.NextAction != "" {
		fmt.Fprintf(tw, "Next:\t%s\n", v.NextAction)
	}
	if r.InvoiceID != "" {
		fmt.Fprintf(tw, "Invoice:\t%s\n", r.InvoiceID)
	}
	fmt.Fprintln(tw)

	for _, m := range v.Details.Materials {
		if m == nil {
			continue
		}
		fmt.Fprintf(tw, "  %s\tx%g\t%s\n", m.Name, m.Quantity.Or(1), money(billing.LineTotal(m)))
	}
	for _, c := range v.Charges {
		if c == nil {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%gh\t%s\n", c.Description, c.Hours.Or(0), money(billing.ChargeTotal(c)))
	}

	t := v.Totals
	fmt.Fprintf(tw, "Materials:\t\t%s\n", money(t.MaterialsTotal))
	fmt.Fprintf(tw, "Labor:\t\t%s\n", money(t.LaborTotal))
	if t.Discount > 0 {
		fmt.Fprintf(tw, "Premium discount:\t\t-%s\n", money(t.Discount))
	}
	fmt.Fprintf(tw, "Subtotal:\t\t%s\n", money(t.Subtotal))
	fmt.Fprintf(tw, "GST:\t\t%s\n", money(t.Tax))
	fmt.Fprintf(tw, "Total:\t\t%s\n", money(t.GrandTotal))
	for _, n := range v.Notices {
		fmt.Fprintf(tw, "[%s]\t%s\n", n.Level, n.Message)
	}
	return tw.Flush()
}
