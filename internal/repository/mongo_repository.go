package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// bookingDocument is the MongoDB representation of a booking.
type bookingDocument struct {
	ID              string `bson:"id"`
	BookingNumber   string `bson:"booking_number"`
	UserID          string `bson:"user_id"`
	AddressID       string `bson:"address_id"`
	TankType        string `bson:"tank_type"`
	TankCapacity    string `bson:"tank_capacity"`
	TankPhotoURL    string `bson:"tank_photo_url,omitempty"`
	PackageType     string `bson:"package_type"`
	AddDisinfection bool   `bson:"add_disinfection"`
	AddMaintenance  bool   `bson:"add_maintenance"`
	AddRepair       bool   `bson:"add_repair"`
	ServiceDate     string `bson:"service_date"`
	ServiceTime     string `bson:"service_time"`

	PaymentMethod string `bson:"payment_method"`
	Amount        int64  `bson:"amount"`
	Currency      string `bson:"currency"`
	PaymentStatus string `bson:"payment_status"`
	OrderRef      string `bson:"order_ref,omitempty"`
	PaymentRef    string `bson:"payment_ref,omitempty"`

	Status               string                         `bson:"status"`
	AssignedTechnicianID *string                        `bson:"assigned_technician_id"`
	Checklist            *bookingDomain.Checklist       `bson:"checklist"`
	IncidentReports      []bookingDomain.IncidentReport `bson:"incident_reports"`
	Completion           *bookingDomain.Completion      `bson:"completion"`

	StartedAt   *time.Time `bson:"started_at"`
	CancelledAt *time.Time `bson:"cancelled_at"`
	Version     int64      `bson:"version"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

// MongoBookingRepository implements BookingRepository on a MongoDB collection.
// Guarded updates are UpdateOne calls whose filter carries the precondition;
// list fields change only through $push.
type MongoBookingRepository struct {
	coll *mongo.Collection
}

// NewMongoBookingRepository creates a MongoBookingRepository and ensures its indexes.
func NewMongoBookingRepository(ctx context.Context, db *mongo.Database) (*MongoBookingRepository, error) {
	repo := &MongoBookingRepository{coll: db.Collection("bookings")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *MongoBookingRepository) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "booking_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "assigned_technician_id", Value: 1}, {Key: "service_date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

func (r *MongoBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	if _, err := r.coll.InsertOne(ctx, toBookingDocument(bk)); err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

func (r *MongoBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var doc bookingDocument
	if err := r.coll.FindOne(ctx, bson.M{"id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return fromBookingDocument(&doc)
}

func (r *MongoBookingRepository) List(ctx context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	query := bson.M{}
	if filter.UserID != nil {
		query["user_id"] = filter.UserID.String()
	}
	if filter.TechnicianID != nil {
		query["assigned_technician_id"] = filter.TechnicianID.String()
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query["status"] = bson.M{"$in": statuses}
	}
	if filter.ServiceDate != "" {
		query["service_date"] = filter.ServiceDate
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	sortBy := bson.D{{Key: "created_at", Value: -1}}
	if filter.SortByServiceDate {
		sortBy = bson.D{{Key: "service_date", Value: 1}, {Key: "created_at", Value: 1}}
	}
	opts := options.Find().SetSort(sortBy).SetSkip(int64(filter.Offset()))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*bookingDomain.Booking
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode booking: %w", err)
		}
		bk, err := fromBookingDocument(&doc)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, bk)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor error: %w", err)
	}
	return bookings, total, nil
}

func (r *MongoBookingRepository) CountByStatus(ctx context.Context) (map[bookingDomain.BookingStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode status counts: %w", err)
	}
	counts := make(map[bookingDomain.BookingStatus]int64, len(rows))
	for _, row := range rows {
		counts[bookingDomain.BookingStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *MongoBookingRepository) CountJobs(ctx context.Context, techID uuid.UUID, today string) (bookingDomain.JobCounts, error) {
	var c bookingDomain.JobCounts
	tech := techID.String()
	queries := []struct {
		dst    *int64
		filter bson.M
	}{
		{&c.Total, bson.M{"assigned_technician_id": tech}},
		{&c.Today, bson.M{"assigned_technician_id": tech, "service_date": today}},
		{&c.CompletedToday, bson.M{"assigned_technician_id": tech, "service_date": today, "status": string(bookingDomain.StatusCompleted)}},
		{&c.InProgress, bson.M{"assigned_technician_id": tech, "status": string(bookingDomain.StatusInProgress)}},
	}
	for _, q := range queries {
		n, err := r.coll.CountDocuments(ctx, q.filter)
		if err != nil {
			return c, fmt.Errorf("failed to count technician jobs: %w", err)
		}
		*q.dst = n
	}
	return c, nil
}

func (r *MongoBookingRepository) SetOrderRef(ctx context.Context, id uuid.UUID, orderRef string) error {
	return r.guardedUpdate(ctx,
		bson.M{"id": id.String(), "status": string(bookingDomain.StatusPending)},
		bson.M{"$set": bson.M{"order_ref": orderRef}},
	)
}

func (r *MongoBookingRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, expectOrderRef string, paymentStatus bookingDomain.PaymentStatus, paymentRef string) error {
	filter := bson.M{"id": id.String(), "status": string(bookingDomain.StatusPending)}
	if expectOrderRef != "" {
		filter["order_ref"] = expectOrderRef
	}
	set := bson.M{
		"status":         string(bookingDomain.StatusConfirmed),
		"payment_status": string(paymentStatus),
	}
	if paymentRef != "" {
		set["payment_ref"] = paymentRef
	}
	return r.guardedUpdate(ctx, filter, bson.M{"$set": set})
}

func (r *MongoBookingRepository) FailPayment(ctx context.Context, id uuid.UUID, expectOrderRef string) error {
	filter := bson.M{"id": id.String(), "status": string(bookingDomain.StatusPending)}
	if expectOrderRef != "" {
		filter["order_ref"] = expectOrderRef
	}
	return r.guardedUpdate(ctx, filter, bson.M{"$set": bson.M{"payment_status": string(bookingDomain.PaymentFailed)}})
}

func (r *MongoBookingRepository) AssignTechnician(ctx context.Context, id uuid.UUID, techID uuid.UUID) error {
	return r.guardedUpdate(ctx,
		bson.M{"id": id.String()},
		bson.M{"$set": bson.M{"assigned_technician_id": techID.String()}},
	)
}

func (r *MongoBookingRepository) StartJob(ctx context.Context, id uuid.UUID, techID uuid.UUID, checklist *bookingDomain.Checklist) error {
	return r.guardedUpdate(ctx,
		bson.M{
			"id":                     id.String(),
			"status":                 string(bookingDomain.StatusConfirmed),
			"assigned_technician_id": techID.String(),
			"checklist":              nil,
		},
		bson.M{"$set": bson.M{
			"status":     string(bookingDomain.StatusInProgress),
			"checklist":  checklist,
			"started_at": checklist.StartedAt,
		}},
	)
}

func (r *MongoBookingRepository) runningJobFilter(id, techID uuid.UUID) bson.M {
	return bson.M{
		"id":                     id.String(),
		"status":                 string(bookingDomain.StatusInProgress),
		"assigned_technician_id": techID.String(),
		"checklist":              bson.M{"$ne": nil},
	}
}

func (r *MongoBookingRepository) UpdateStep(ctx context.Context, id uuid.UUID, techID uuid.UUID, update bookingDomain.StepUpdate) error {
	prefix := "checklist.steps." + string(update.Step) + "."
	set := bson.M{
		prefix + "status":    string(update.Status),
		prefix + "timestamp": update.Timestamp,
	}
	if update.Notes != "" {
		set[prefix+"notes"] = update.Notes
	}
	doc := bson.M{"$set": set}
	if update.PhotoURL != "" {
		doc["$push"] = bson.M{prefix + "photos": update.PhotoURL}
	}
	return r.guardedUpdate(ctx, r.runningJobFilter(id, techID), doc)
}

func (r *MongoBookingRepository) RecordUsage(ctx context.Context, id uuid.UUID, techID uuid.UUID, usage bookingDomain.UsageUpdate) error {
	doc := bson.M{}
	if usage.Chemical != nil {
		doc["$push"] = bson.M{"checklist.chemicals_used": usage.Chemical}
	}
	if usage.WaterLitres != 0 {
		doc["$inc"] = bson.M{"checklist.water_usage": usage.WaterLitres}
	}
	return r.guardedUpdate(ctx, r.runningJobFilter(id, techID), doc)
}

func (r *MongoBookingRepository) AppendIncident(ctx context.Context, id uuid.UUID, techID uuid.UUID, incident bookingDomain.IncidentReport, escalate bool) error {
	doc := bson.M{"$push": bson.M{"incident_reports": incident}}
	if escalate {
		doc["$set"] = bson.M{"status": string(bookingDomain.StatusEscalated)}
	}
	return r.guardedUpdate(ctx,
		bson.M{"id": id.String(), "assigned_technician_id": techID.String()},
		doc,
	)
}

func (r *MongoBookingRepository) Complete(ctx context.Context, id uuid.UUID, techID uuid.UUID, completion bookingDomain.Completion) error {
	return r.guardedUpdate(ctx,
		bson.M{
			"id":                     id.String(),
			"status":                 string(bookingDomain.StatusInProgress),
			"assigned_technician_id": techID.String(),
		},
		bson.M{"$set": bson.M{
			"status":     string(bookingDomain.StatusCompleted),
			"completion": completion,
		}},
	)
}

func (r *MongoBookingRepository) Transition(ctx context.Context, id uuid.UUID, from []bookingDomain.BookingStatus, to bookingDomain.BookingStatus) error {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	set := bson.M{"status": string(to)}
	if to == bookingDomain.StatusCancelled {
		set["cancelled_at"] = time.Now().UTC()
	}
	return r.guardedUpdate(ctx,
		bson.M{"id": id.String(), "status": bson.M{"$in": sources}},
		bson.M{"$set": set},
	)
}

func (r *MongoBookingRepository) OverrideStatus(ctx context.Context, id uuid.UUID, status bookingDomain.BookingStatus) error {
	return r.guardedUpdate(ctx, bson.M{"id": id.String()}, bson.M{"$set": bson.M{"status": string(status)}})
}

func (r *MongoBookingRepository) Reschedule(ctx context.Context, id uuid.UUID, date, slot string) error {
	return r.guardedUpdate(ctx,
		bson.M{"id": id.String(), "status": bson.M{"$in": []string{
			string(bookingDomain.StatusPending),
			string(bookingDomain.StatusConfirmed),
		}}},
		bson.M{"$set": bson.M{"service_date": date, "service_time": slot}},
	)
}

// guardedUpdate bumps version and updated_at alongside the caller's operators.
func (r *MongoBookingRepository) guardedUpdate(ctx context.Context, filter, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = time.Now().UTC()
	update["$set"] = set

	inc, _ := update["$inc"].(bson.M)
	if inc == nil {
		inc = bson.M{}
	}
	inc["version"] = 1
	update["$inc"] = inc

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if res.MatchedCount == 0 {
		return bookingDomain.ErrGuardFailed
	}
	return nil
}

func toBookingDocument(bk *bookingDomain.Booking) *bookingDocument {
	spec := bk.Spec()
	var tech *string
	if id := bk.AssignedTechnicianID(); id != nil {
		s := id.String()
		tech = &s
	}
	return &bookingDocument{
		ID:                   bk.ID().String(),
		BookingNumber:        bk.BookingNumber(),
		UserID:               bk.UserID().String(),
		AddressID:            bk.AddressID().String(),
		TankType:             string(spec.TankType),
		TankCapacity:         spec.TankCapacity,
		TankPhotoURL:         spec.TankPhotoURL,
		PackageType:          string(spec.PackageType),
		AddDisinfection:      spec.AddDisinfection,
		AddMaintenance:       spec.AddMaintenance,
		AddRepair:            spec.AddRepair,
		ServiceDate:          spec.ServiceDate,
		ServiceTime:          spec.ServiceTime,
		PaymentMethod:        string(bk.PaymentMethod()),
		Amount:               bk.Amount(),
		Currency:             bk.Currency(),
		PaymentStatus:        string(bk.PaymentStatus()),
		OrderRef:             bk.OrderRef(),
		PaymentRef:           bk.PaymentRef(),
		Status:               string(bk.Status()),
		AssignedTechnicianID: tech,
		Checklist:            bk.Checklist(),
		IncidentReports:      bk.Incidents(),
		Completion:           bk.Completion(),
		StartedAt:            bk.StartedAt(),
		CancelledAt:          bk.CancelledAt(),
		Version:              bk.Version(),
		CreatedAt:            bk.CreatedAt(),
		UpdatedAt:            bk.UpdatedAt(),
	}
}

func fromBookingDocument(doc *bookingDocument) (*bookingDomain.Booking, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid booking id %q: %w", doc.ID, err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", doc.UserID, err)
	}
	addressID, err := uuid.Parse(doc.AddressID)
	if err != nil {
		return nil, fmt.Errorf("invalid address id %q: %w", doc.AddressID, err)
	}
	var tech *uuid.UUID
	if doc.AssignedTechnicianID != nil {
		t, err := uuid.Parse(*doc.AssignedTechnicianID)
		if err != nil {
			return nil, fmt.Errorf("invalid technician id %q: %w", *doc.AssignedTechnicianID, err)
		}
		tech = &t
	}
	status, err := bookingDomain.ParseBookingStatus(doc.Status)
	if err != nil {
		return nil, err
	}

	spec := bookingDomain.ServiceSpec{
		TankType:        bookingDomain.TankType(doc.TankType),
		TankCapacity:    doc.TankCapacity,
		TankPhotoURL:    doc.TankPhotoURL,
		PackageType:     bookingDomain.PackageType(doc.PackageType),
		AddDisinfection: doc.AddDisinfection,
		AddMaintenance:  doc.AddMaintenance,
		AddRepair:       doc.AddRepair,
		ServiceDate:     doc.ServiceDate,
		ServiceTime:     doc.ServiceTime,
	}

	return bookingDomain.ReconstructBooking(
		id,
		doc.BookingNumber,
		userID,
		addressID,
		spec,
		bookingDomain.PaymentMethod(doc.PaymentMethod),
		doc.Amount,
		doc.Currency,
		bookingDomain.PaymentStatus(doc.PaymentStatus),
		doc.OrderRef,
		doc.PaymentRef,
		status,
		tech,
		doc.Checklist,
		doc.IncidentReports,
		doc.Completion,
		doc.StartedAt,
		doc.CancelledAt,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	), nil
}

// addressDocument mirrors the addresses collection.
type addressDocument struct {
	ID          string    `bson:"id"`
	UserID      string    `bson:"user_id"`
	Name        string    `bson:"name"`
	AddressLine string    `bson:"address_line"`
	Landmark    string    `bson:"landmark,omitempty"`
	Lat         *float64  `bson:"lat,omitempty"`
	Lng         *float64  `bson:"lng,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoAccounts reads addresses, users, field_teams and admins collections.
type MongoAccounts struct {
	addresses  *mongo.Collection
	users      *mongo.Collection
	fieldTeams *mongo.Collection
	admins     *mongo.Collection
}

// NewMongoAccounts creates a MongoAccounts over db.
func NewMongoAccounts(db *mongo.Database) *MongoAccounts {
	return &MongoAccounts{
		addresses:  db.Collection("addresses"),
		users:      db.Collection("users"),
		fieldTeams: db.Collection("field_teams"),
		admins:     db.Collection("admins"),
	}
}

func (m *MongoAccounts) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*account.Address, error) {
	return m.findAddress(ctx, bson.M{"id": id.String(), "user_id": ownerID.String()}, id)
}

func (m *MongoAccounts) FindByID(ctx context.Context, id uuid.UUID) (*account.Address, error) {
	return m.findAddress(ctx, bson.M{"id": id.String()}, id)
}

func (m *MongoAccounts) findAddress(ctx context.Context, filter bson.M, id uuid.UUID) (*account.Address, error) {
	var doc addressDocument
	if err := m.addresses.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("Address", id.String())
		}
		return nil, fmt.Errorf("failed to find address: %w", err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid address owner %q: %w", doc.UserID, err)
	}
	return &account.Address{
		ID:          id,
		UserID:      userID,
		Name:        doc.Name,
		AddressLine: doc.AddressLine,
		Landmark:    doc.Landmark,
		Lat:         doc.Lat,
		Lng:         doc.Lng,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

func (m *MongoAccounts) TechnicianExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return exists(ctx, m.fieldTeams, bson.M{"id": id.String(), "active": true})
}

func (m *MongoAccounts) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return exists(ctx, m.users, bson.M{"id": id.String()})
}

func (m *MongoAccounts) AdminExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return exists(ctx, m.admins, bson.M{"id": id.String()})
}

func (m *MongoAccounts) FindCustomer(ctx context.Context, id uuid.UUID) (*account.Contact, error) {
	var doc struct {
		Name  string `bson:"name"`
		Email string `bson:"email"`
		Phone string `bson:"phone"`
	}
	opts := options.FindOne().SetProjection(bson.M{"password": 0})
	if err := m.users.FindOne(ctx, bson.M{"id": id.String()}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NewNotFoundError("Customer", id.String())
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &account.Contact{ID: id, Name: doc.Name, Email: doc.Email, Phone: doc.Phone}, nil
}

func exists(ctx context.Context, coll *mongo.Collection, filter bson.M) (bool, error) {
	n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", coll.Name(), err)
	}
	return n > 0, nil
}
