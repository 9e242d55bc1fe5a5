package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dockhand/dockhand/pkg/types"
)

var (
	// Bucket names
	bucketDeployments      = []byte("deployments")
	bucketArchivedServices = []byte("archived_services")
	bucketArchivedProjects = []byte("archived_projects")
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// BoltStore persists deployment records and archival snapshots in BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "dockhand.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDeployments,
			bucketArchivedServices,
			bucketArchivedProjects,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Deployment operations

func (s *BoltStore) SaveDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(deployment)
		if err != nil {
			return err
		}
		return b.Put([]byte(deployment.Hash), data)
	})
}

func (s *BoltStore) GetDeployment(hash string) (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(hash))
		if data == nil {
			return fmt.Errorf("deployment %s: %w", hash, ErrNotFound)
		}
		return json.Unmarshal(data, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (s *BoltStore) ListDeploymentsByService(serviceID string) ([]types.Deployment, error) {
	var deployments []types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if deployment.ServiceID == serviceID {
				deployments = append(deployments, deployment)
			}
			return nil
		})
	})
	return deployments, err
}

// SetDeploymentStatus transitions a deployment's status and reason in one
// transaction so concurrent readers never see a half-written record.
func (s *BoltStore) SetDeploymentStatus(hash string, status types.DeploymentStatus, reason string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(hash))
		if data == nil {
			return fmt.Errorf("deployment %s: %w", hash, ErrNotFound)
		}
		var deployment types.Deployment
		if err := json.Unmarshal(data, &deployment); err != nil {
			return err
		}
		deployment.Status = status
		deployment.StatusReason = reason
		updated, err := json.Marshal(&deployment)
		if err != nil {
			return err
		}
		return b.Put([]byte(hash), updated)
	})
}

// MarkCurrentProduction flags one deployment of a service as the
// production one and clears the flag on every sibling.
func (s *BoltStore) MarkCurrentProduction(serviceID, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if deployment.ServiceID != serviceID {
				return nil
			}
			current := deployment.Hash == hash
			if deployment.IsCurrentProduction == current {
				return nil
			}
			deployment.IsCurrentProduction = current
			updated, err := json.Marshal(&deployment)
			if err != nil {
				return err
			}
			return b.Put(k, updated)
		})
	})
}

func (s *BoltStore) DeleteDeployment(hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.Delete([]byte(hash))
	})
}

// Archival snapshots. A snapshot is written when its owner is archived and
// consumed exactly once by the reclaimer: Pop reads and deletes in a
// single transaction so two reclaim workers cannot both tear down the same
// resources.

func (s *BoltStore) PutServiceSnapshot(snapshot *types.ArchivedService) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivedServices)
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return b.Put([]byte(snapshot.OriginalID), data)
	})
}

func (s *BoltStore) PopServiceSnapshot(originalID string) (*types.ArchivedService, error) {
	var snapshot types.ArchivedService
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivedServices)
		data := b.Get([]byte(originalID))
		if data == nil {
			return fmt.Errorf("service snapshot %s: %w", originalID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return err
		}
		return b.Delete([]byte(originalID))
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *BoltStore) PutProjectSnapshot(snapshot *types.ArchivedProject) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivedProjects)
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return b.Put([]byte(snapshot.OriginalID), data)
	})
}

func (s *BoltStore) PopProjectSnapshot(originalID string) (*types.ArchivedProject, error) {
	var snapshot types.ArchivedProject
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchivedProjects)
		data := b.Get([]byte(originalID))
		if data == nil {
			return fmt.Errorf("project snapshot %s: %w", originalID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return err
		}
		return b.Delete([]byte(originalID))
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// PruneTerminalDeployments drops terminal deployment records older than
// the cutoff, keeping the current production one regardless of age.
func (s *BoltStore) PruneTerminalDeployments(cutoff time.Time) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if !deployment.Status.IsTerminal() || deployment.IsCurrentProduction {
				continue
			}
			if deployment.CreatedAt.After(cutoff) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
