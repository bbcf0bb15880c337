//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	bookingEvents "github.com/aquatrack-hygiene/service-booking/internal/events"
	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/cache"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/database"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/kafka"
	"github.com/aquatrack-hygiene/service-booking/internal/proto/events"
	"github.com/aquatrack-hygiene/service-booking/internal/repository"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	mongomodule "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// bookingStack holds wired-up booking service components.
type bookingStack struct {
	Bookings        *application.BookingService
	Jobs            *application.JobService
	Gateway         *payment.MockGateway
	Consumer        *bookingEvents.PaymentEventConsumer
	CleanupProducer func()
}

// seededAccounts are the rows every scenario needs.
type seededAccounts struct {
	Customer   application.Actor
	Technician application.Actor
	Admin      application.Actor
	AddressID  uuid.UUID
}

// setupPostgres starts a PostgreSQL container and applies the SQL migrations.
func setupPostgres(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_booking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_booking",
		SSLMode:  "disable",
	}

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = database.Connect(cfg, log)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(cfg.DatabaseURL(), "migrations", log))

	return db, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}
}

// setupMongo starts a MongoDB container and opens the booking database.
func setupMongo(t *testing.T) (*mongo.Database, func()) {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := mongomodule.Run(ctx, "mongo:7")
	require.NoError(t, err, "failed to start MongoDB container")

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := database.ConnectMongo(ctx, uri, "test_booking", zap.NewNop())
	require.NoError(t, err, "MongoDB not ready for connections")

	return db, func() {
		_ = db.Client().Disconnect(context.Background())
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate MongoDB container: %v", err)
		}
	}
}

// setupContainers starts PostgreSQL and Kafka testcontainers.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	db, cleanupPG := setupPostgres(t)

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, events.TopicBookingEvents, events.TopicPaymentEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		cleanupPG()
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupBookingStack wires up the full booking service stack on PostgreSQL.
// With no brokers events go to the log publisher and no consumer is built.
func setupBookingStack(t *testing.T, db *gorm.DB, brokers []string) *bookingStack {
	t.Helper()
	return newBookingStack(t,
		repository.NewGormBookingRepository(db),
		repository.NewGormAddressRepository(db),
		repository.NewGormDirectory(db),
		brokers,
	)
}

// setupMongoStack wires up the booking service stack on MongoDB.
func setupMongoStack(t *testing.T, db *mongo.Database) *bookingStack {
	t.Helper()
	bookingRepo, err := repository.NewMongoBookingRepository(context.Background(), db)
	require.NoError(t, err)
	accounts := repository.NewMongoAccounts(db)
	return newBookingStack(t, bookingRepo, accounts, accounts, nil)
}

func newBookingStack(
	t *testing.T,
	bookingRepo bookingDomain.BookingRepository,
	addresses account.AddressRepository,
	directory account.Directory,
	brokers []string,
) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	gateway := payment.NewMockGateway("integration-secret")

	stack := &bookingStack{Gateway: gateway, CleanupProducer: func() {}}

	var publisher application.EventPublisher = bookingEvents.NewLogPublisher(logger)
	if len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, logger)
		publisher = producer
		stack.CleanupProducer = func() { _ = producer.Close() }
	}

	stack.Bookings = application.NewBookingService(
		bookingRepo, addresses, directory,
		bookingDomain.NewStandardPricingStrategy(),
		gateway, cache.NewLocalLocker(), publisher,
		application.PaymentSettings{}, logger,
	)
	stack.Jobs = application.NewJobService(bookingRepo, addresses, directory, publisher, logger)

	if len(brokers) > 0 {
		groupID := fmt.Sprintf("test-booking-%s", uuid.New().String()[:8])
		stack.Consumer = bookingEvents.NewPaymentEventConsumer(brokers, groupID, stack.Bookings, logger)
	}
	return stack
}

// seedAccounts inserts a customer with one address, a technician and an admin.
func seedAccounts(t *testing.T, db *gorm.DB) seededAccounts {
	t.Helper()
	s := seededAccounts{
		Customer:   application.NewActor(uuid.New(), auth.RoleCustomer),
		Technician: application.NewActor(uuid.New(), auth.RoleTechnician),
		Admin:      application.NewActor(uuid.New(), auth.RoleAdmin),
		AddressID:  uuid.New(),
	}
	suffix := uuid.New().String()[:8]

	require.NoError(t, db.Create(&repository.UserModel{
		ID: s.Customer.ID, Email: "customer-" + suffix + "@example.com", Name: "Priya", Phone: "9811111111",
	}).Error)
	require.NoError(t, db.Create(&repository.FieldTeamModel{
		ID: s.Technician.ID, Email: "tech-" + suffix + "@example.com", Name: "Arjun", Active: true,
	}).Error)
	require.NoError(t, db.Create(&repository.AdminModel{
		ID: s.Admin.ID, Email: "admin-" + suffix + "@example.com", Name: "Ops",
	}).Error)
	require.NoError(t, db.Create(&repository.AddressModel{
		ID: s.AddressID, UserID: s.Customer.ID, Name: "Home", AddressLine: "221 MG Road",
	}).Error)
	return s
}

// seedMongoAccounts inserts the same fixtures as seedAccounts as documents.
func seedMongoAccounts(t *testing.T, db *mongo.Database) seededAccounts {
	t.Helper()
	ctx := context.Background()
	s := seededAccounts{
		Customer:   application.NewActor(uuid.New(), auth.RoleCustomer),
		Technician: application.NewActor(uuid.New(), auth.RoleTechnician),
		Admin:      application.NewActor(uuid.New(), auth.RoleAdmin),
		AddressID:  uuid.New(),
	}

	_, err := db.Collection("users").InsertOne(ctx, bson.M{
		"id": s.Customer.ID.String(), "name": "Priya", "email": "priya@example.com", "phone": "9811111111",
	})
	require.NoError(t, err)
	_, err = db.Collection("field_teams").InsertOne(ctx, bson.M{
		"id": s.Technician.ID.String(), "name": "Arjun", "active": true,
	})
	require.NoError(t, err)
	_, err = db.Collection("admins").InsertOne(ctx, bson.M{"id": s.Admin.ID.String(), "name": "Ops"})
	require.NoError(t, err)
	_, err = db.Collection("addresses").InsertOne(ctx, bson.M{
		"id": s.AddressID.String(), "user_id": s.Customer.ID.String(),
		"name": "Home", "address_line": "221 MG Road", "created_at": time.Now().UTC(),
	})
	require.NoError(t, err)
	return s
}

func bookingRequest(addressID uuid.UUID, method string) application.CreateBookingRequest {
	return application.CreateBookingRequest{
		AddressID:       addressID,
		TankType:        "overhead",
		TankCapacity:    "1500L",
		PackageType:     "automated",
		AddDisinfection: true,
		ServiceDate:     time.Now().UTC().Format(bookingDomain.ServiceDateLayout),
		ServiceTime:     "10:00-12:00",
		PaymentMethod:   method,
	}
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, key string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")
	ce.Subject = key

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForBookingStatus polls the bookings table until the status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expectedStatus string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		err := db.Where("id = ?", bookingID).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
