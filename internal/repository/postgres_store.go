package repository

// PostgresStore composes the Postgres repositories into a Store.
type PostgresStore struct {
	*EnrollmentRepository
	*OfferingRepository
	*StudentRepository
	*DocumentRepository
	*AuditLogRepository
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wires every repository to the same pool.
func NewPostgresStore(pool pgxPool) *PostgresStore {
	return &PostgresStore{
		EnrollmentRepository: NewEnrollmentRepository(pool),
		OfferingRepository:   NewOfferingRepository(pool),
		StudentRepository:    NewStudentRepository(pool),
		DocumentRepository:   NewDocumentRepository(pool),
		AuditLogRepository:   NewAuditLogRepository(pool),
	}
}
