package claim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ErrStore: хранилище захватов недоступно.
var ErrStore = errors.New("claim store unavailable")

const redisKeyPrefix = "udu:claim:"

// RedisGuard захватывает descriptor условной записью в Redis.
//
// Ключ хранит время модификации descriptor'а на момент захвата.
// Тот же штамп означает повторную доставку, другой означает, что
// файл с тем же именем загрузили заново. Descriptor остаётся на месте.
type RedisGuard struct {
	client *redis.Client
	dir    string
}

// NewRedisGuard создаёт guard поверх client для каталога загрузок dir.
func NewRedisGuard(client *redis.Client, dir string) *RedisGuard {
	return &RedisGuard{client: client, dir: dir}
}

// Key возвращает ключ захвата для descriptor'а name.
func Key(name string) string {
	return redisKeyPrefix + filepath.Base(name)
}

// Claim выполняет SETNX и трёхходовую проверку по штампу.
func (g *RedisGuard) Claim(ctx context.Context, name string) (Claim, error) {
	base, err := baseName(name)
	if err != nil {
		return Claim{}, err
	}
	descriptor := filepath.Join(g.dir, base)
	key := Key(base)

	info, err := os.Stat(descriptor)
	if errors.Is(err, fs.ErrNotExist) {
		n, err := g.client.Exists(ctx, key).Result()
		if err != nil {
			return Claim{}, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if n > 0 {
			return Claim{Result: AlreadyClaimed, Path: descriptor}, nil
		}
		return Claim{}, fmt.Errorf("%w: %s", ErrDescriptorNotFound, descriptor)
	}
	if err != nil {
		return Claim{}, fmt.Errorf("stat %s: %w", descriptor, err)
	}

	stamp := strconv.FormatInt(info.ModTime().UnixNano(), 10)

	ok, err := g.client.SetNX(ctx, key, stamp, 0).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if ok {
		return Claim{Result: Claimed, Path: descriptor}, nil
	}

	existing, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Ключ исчез между SETNX и GET: его кто-то удалил вручную
		return Claim{Result: AlreadyClaimed, Path: descriptor}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if existing == stamp {
		return Claim{Result: AlreadyClaimed, Path: descriptor}, nil
	}
	return Claim{Result: DoubleSubmission, Path: descriptor}, nil
}
