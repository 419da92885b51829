// Package aws stores rooms in an S3 bucket: one object per stroke under
// rooms/<room>/strokes/ and a registry object per room.
package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"inkboard/core"
)

// API is the part of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Store struct {
	client API
	bucket string
	now    func() time.Time
}

// object is the stored form of a stroke. Seq orders strokes by first save.
type object struct {
	core.StrokeRecord
	Seq string `json:"seq"`
}

type roomObject struct {
	ID         string `json:"id"`
	LastActive int64  `json:"lastActive"`
}

// NewStore loads the default AWS config and returns a store on bucketName.
func NewStore(ctx context.Context, bucketName string) (core.Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName), nil
}

func NewStoreWithClient(client API, bucketName string) core.Store {
	return &s3Store{client: client, bucket: bucketName, now: time.Now}
}

func roomPrefix(roomID string) string {
	return "rooms/" + url.PathEscape(roomID) + "/"
}

func strokeKey(roomID, id string) string {
	return roomPrefix(roomID) + "strokes/" + url.PathEscape(id) + ".json"
}

func roomKey(roomID string) string {
	return roomPrefix(roomID) + "room.json"
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", key, core.ErrNotFound)
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *s3Store) ListStrokes(ctx context.Context, roomID string) ([]core.StrokeRecord, error) {
	log := logrus.WithField("room_id", roomID)
	keys, err := s.listKeys(ctx, roomPrefix(roomID)+"strokes/")
	if err != nil {
		log.WithError(err).Error("Failed to list strokes")
		return nil, err
	}

	objs := make([]object, 0, len(keys))
	for _, key := range keys {
		var o object
		if err := s.getJSON(ctx, key, &o); err != nil {
			log.WithError(err).Warnf("Skipping stroke object %s", key)
			continue
		}
		objs = append(objs, o)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Seq < objs[j].Seq })

	recs := make([]core.StrokeRecord, len(objs))
	for i, o := range objs {
		recs[i] = o.StrokeRecord
	}
	return recs, nil
}

func (s *s3Store) SaveStroke(ctx context.Context, rec core.StrokeRecord) error {
	if rec.RoomID == "" || rec.ID == "" {
		return fmt.Errorf("room id and stroke id are required")
	}
	key := strokeKey(rec.RoomID, rec.ID)

	o := object{StrokeRecord: rec}
	var existing object
	switch err := s.getJSON(ctx, key, &existing); {
	case err == nil:
		o.CreatedAt, o.Seq = existing.CreatedAt, existing.Seq
	case errors.Is(err, core.ErrNotFound):
		if o.CreatedAt == 0 {
			o.CreatedAt = s.now().UnixMilli()
		}
		o.Seq = ulid.Make().String()
	default:
		return err
	}
	if err := s.putJSON(ctx, key, o); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "stroke_id": rec.ID}).WithError(err).Error("Failed to save stroke")
		return err
	}
	return nil
}

func (s *s3Store) exists(ctx context.Context, key string) (bool, error) {
	var o json.RawMessage
	err := s.getJSON(ctx, key, &o)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *s3Store) deleteKey(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteStrokes checks each key first since S3 deletes of missing keys succeed.
func (s *s3Store) DeleteStrokes(ctx context.Context, roomID string, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		key := strokeKey(roomID, id)
		ok, err := s.exists(ctx, key)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if err := s.deleteKey(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *s3Store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	return s.putJSON(ctx, roomKey(roomID), roomObject{ID: roomID, LastActive: s.now().UnixMilli()})
}

func (s *s3Store) ListRooms(ctx context.Context) ([]core.Room, error) {
	keys, err := s.listKeys(ctx, "rooms/")
	if err != nil {
		return nil, err
	}
	rooms := []core.Room{}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/room.json") {
			continue
		}
		var r roomObject
		if err := s.getJSON(ctx, key, &r); err != nil {
			logrus.WithError(err).Warnf("Skipping room object %s", key)
			continue
		}
		rooms = append(rooms, core.Room{ID: r.ID, LastActive: r.LastActive})
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
	return rooms, nil
}

func (s *s3Store) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	keys, err := s.listKeys(ctx, roomPrefix(roomID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	for _, key := range keys {
		if err := s.deleteKey(ctx, key); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "objects": len(keys)}).Info("Room deleted")
	return nil
}
