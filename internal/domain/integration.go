package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Integration is one configured source connection for one tenant. Namespace
// is the tenant isolation boundary: every transient payload that references
// this integration must carry the same namespace.
type Integration struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name            string     `gorm:"column:name;not null" json:"name"`
	Source          SourceType `gorm:"column:source;not null;index" json:"source"`
	Namespace       string     `gorm:"column:namespace;not null;index" json:"namespace"`
	RefreshSchedule string     `gorm:"column:refresh_schedule;not null" json:"refresh_schedule"`
	Status          Status     `gorm:"column:status;not null;default:not_started" json:"status"`
	LastRun         *time.Time `gorm:"column:last_run" json:"last_run,omitempty"`
	IsActive        bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	SecretName      string     `gorm:"column:secret_name" json:"secret_name,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;default:now()" json:"updated_at"`

	ParentGroups     []ParentGroupData    `gorm:"foreignKey:IntegrationID;constraint:OnDelete:CASCADE" json:"-"`
	ProcessingJobs   []ChunkProcessingJob `gorm:"foreignKey:IntegrationID;constraint:OnDelete:CASCADE" json:"-"`
	ClusterResources []ClusterResource    `gorm:"foreignKey:IntegrationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Integration) TableName() string { return "integrations" }

// ParentGroupData is one discoverable unit of source data under an
// integration (a Slack channel, a GitHub repository). Rows persist across
// runs so LastRun can anchor incremental fetches.
type ParentGroupData struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ExternalID  string         `gorm:"column:external_id;not null;uniqueIndex:idx_group_external_integration" json:"external_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	GroupType   GroupType      `gorm:"column:group_type;not null" json:"group_type"`
	NodeCount   int            `gorm:"column:node_count;not null;default:0" json:"node_count"`
	EdgeCount   int            `gorm:"column:edge_count;not null;default:0" json:"edge_count"`
	RecordCount int            `gorm:"column:record_count;not null;default:0" json:"record_count"`
	Status      Status         `gorm:"column:status;not null;default:not_started" json:"status"`
	LastRun     *time.Time     `gorm:"column:last_run" json:"last_run,omitempty"`
	RawResponse datatypes.JSON `gorm:"column:raw_response;type:jsonb" json:"-"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`

	IntegrationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_external_integration;index" json:"integration_id"`
}

func (ParentGroupData) TableName() string { return "parent_group_data" }

// ChunkProcessingJob is the database shadow of one execution job. The row ID
// doubles as the execution job's identity so the job can self-report.
// ParentGroupID holds the group's external ID; external IDs are only unique
// per integration, so every lookup must also scope by IntegrationID.
type ChunkProcessingJob struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"column:name;not null;index" json:"name"`
	Status        Status    `gorm:"column:status;not null;default:not_started" json:"status"`
	ParentGroupID string    `gorm:"column:parent_group_id;not null;index" json:"parent_group_id"`
	IntegrationID uuid.UUID `gorm:"type:uuid;column:integration_id;not null;index" json:"integration_id"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ChunkProcessingJob) TableName() string { return "processing_jobs" }

// UpsertedVector records one vector written to the vector store, keyed by the
// store-side vector ID. It exists so record_count can be recomputed from a
// source of truth instead of accumulating deltas.
type UpsertedVector struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VectorID      string    `gorm:"column:vector_id;not null;uniqueIndex" json:"vector_id"`
	ParentGroupID string    `gorm:"column:parent_group_id;not null;index" json:"parent_group_id"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (UpsertedVector) TableName() string { return "vectors" }

// ClusterResource records an orchestrator resource (worker deployment,
// scheduler cronjob) owned by an integration, so deactivation and deletion
// can tear it down.
type ClusterResource struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Role          ExecutionRole `gorm:"column:role;not null" json:"role"`
	Kind          ResourceKind  `gorm:"column:kind;not null" json:"kind"`
	Name          string        `gorm:"column:name;not null" json:"name"`
	IntegrationID uuid.UUID     `gorm:"type:uuid;not null;index" json:"integration_id"`
	CreatedAt     time.Time     `gorm:"not null;default:now()" json:"created_at"`
}

func (ClusterResource) TableName() string { return "cluster_resources" }
