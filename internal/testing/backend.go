package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/drivecopy/internal/models"
)

// FakeBackend is an in-memory remote store satisfying services.Backend.
//
// Objects are registered with AddFile and AddFolder. Per-id faults, panics, delays and gates
// let tests script failures and interleavings.
type FakeBackend struct {
	mu       sync.Mutex
	objects  map[string]models.Metadata
	children map[string][]string
	nextID   int

	Fail            map[string]error         // returned by CopyFile/GetMetadata/ListChildren for the id
	Panic           map[string]bool          // CopyFile panics for the id
	Delay           map[string]time.Duration // CopyFile sleeps (ctx aware) for the id
	Gate            chan struct{}            // when set, CopyFile blocks until it is closed or ctx ends
	ProgressSteps   []int                    // reported through CopyFile's progress callback
	CreateFolderErr error

	copied  []string
	folders []string
	active  int
	peak    int
}

// NewFakeBackend creates an empty [FakeBackend].
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		objects:  make(map[string]models.Metadata),
		children: make(map[string][]string),
		Fail:     make(map[string]error),
		Panic:    make(map[string]bool),
		Delay:    make(map[string]time.Duration),
	}
}

// AddFile registers a file under parent (which may be empty).
func (f *FakeBackend) AddFile(id, name string, size int64, parent string) {
	f.add(models.Metadata{ID: id, Name: name, Kind: models.KindFile, Size: size}, parent)
}

// AddFolder registers a folder under parent (which may be empty).
func (f *FakeBackend) AddFolder(id, name, parent string) {
	f.add(models.Metadata{ID: id, Name: name, Kind: models.KindFolder}, parent)
}

// Link adds an existing object as a child of parent, allowing shapes a real tree cannot have.
func (f *FakeBackend) Link(parent, child string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent] = append(f.children[parent], child)
}

func (f *FakeBackend) add(m models.Metadata, parent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if parent != "" {
		m.ParentIDs = []string{parent}
		f.children[parent] = append(f.children[parent], m.ID)
	}
	f.objects[m.ID] = m
}

func (f *FakeBackend) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateFolderErr != nil {
		return "", f.CreateFolderErr
	}
	f.nextID++
	id := fmt.Sprintf("created-%d", f.nextID)
	m := models.Metadata{ID: id, Name: name, Kind: models.KindFolder}
	if parentID != "" {
		m.ParentIDs = []string{parentID}
	}
	f.objects[id] = m
	f.folders = append(f.folders, name)
	return id, nil
}

func (f *FakeBackend) GetMetadata(ctx context.Context, id string) (*models.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[id]; err != nil {
		return nil, err
	}
	m, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id)
	}
	return &m, nil
}

func (f *FakeBackend) CopyFile(ctx context.Context, id, destFolderID, newName string, progress func(int)) (*models.CopyResult, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	panicking, failure, delay, gate := f.Panic[id], f.Fail[id], f.Delay[id], f.Gate
	steps := append([]int(nil), f.ProgressSteps...)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if panicking {
		panic("fake backend panic for " + id)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}

	f.mu.Lock()
	src, ok := f.objects[id]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("object %s not found", id)
	}
	f.nextID++
	name := src.Name
	if newName != "" {
		name = newName
	}
	copyID := fmt.Sprintf("copy-%d", f.nextID)
	f.objects[copyID] = models.Metadata{ID: copyID, Name: name, Kind: models.KindFile, Size: src.Size, ParentIDs: []string{destFolderID}}
	f.copied = append(f.copied, id)
	f.mu.Unlock()

	if progress != nil {
		for _, p := range steps {
			progress(p)
		}
	}
	return &models.CopyResult{ID: copyID, Name: name, Size: src.Size}, nil
}

func (f *FakeBackend) ListChildren(ctx context.Context, folderID string) ([]models.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[folderID]; err != nil {
		return nil, err
	}
	ids := f.children[folderID]
	out := make([]models.Metadata, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.objects[id])
	}
	return out, nil
}

// Copied returns the source ids of successful file copies, sorted.
func (f *FakeBackend) Copied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.copied...)
	sort.Strings(out)
	return out
}

// CreatedFolders returns the names passed to CreateFolder, in call order.
func (f *FakeBackend) CreatedFolders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.folders...)
}

// PeakConcurrency returns the highest number of CopyFile calls observed in flight at once.
func (f *FakeBackend) PeakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
